package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		// add
		collection.Fields.Add(&core.TextField{
			Name:    "phone",
			Pattern: `^\+?\d{8,15}$`,
		})

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		// remove
		collection.Fields.RemoveByName("phone")

		return app.Save(collection)
	})
}

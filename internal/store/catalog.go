package store

import (
	"time"
	"ticketsales/internal/status"
	"ticketsales/models"

	"github.com/pocketbase/dbx"
)

const eventColumns = "id, name, starts_at, event_type, location_id"

const categoryColumns = "id, event_id, name, price, capacity, seats_available, last_seat_no"

func (q *Queries) GetEvent(id string) (*models.Event, error) {
	return q.getEvent(id, "")
}

// LockEvent reads the event row and holds its lock until the transaction ends. Queue
// mutations for one event are serialized on this lock.
func (q *Queries) LockEvent(id string) (*models.Event, error) {
	return q.getEvent(id, q.forUpdate())
}

func (q *Queries) getEvent(id, suffix string) (*models.Event, error) {
	var event models.Event
	err := q.query("SELECT "+eventColumns+" FROM events WHERE id = {:id}"+suffix, dbx.Params{"id": id}).One(&event)
	if isNoRows(err) {
		return nil, status.ErrEventNotFound
	}
	if err != nil {
		return nil, storageErr("get event", err)
	}
	return &event, nil
}

// ListUpcomingEvents returns events starting at or after from, soonest first.
func (q *Queries) ListUpcomingEvents(from time.Time, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	events := []models.Event{}
	err := q.query(
		"SELECT "+eventColumns+" FROM events WHERE starts_at >= {:from} ORDER BY starts_at, id LIMIT {:limit}",
		dbx.Params{"from": from.UTC(), "limit": limit},
	).All(&events)
	if err != nil {
		return nil, storageErr("list events", err)
	}
	return events, nil
}

func (q *Queries) GetLocation(id string) (*models.Location, error) {
	var loc models.Location
	err := q.query(
		"SELECT id, venue_name, address, country, state, postal_code, description FROM locations WHERE id = {:id}",
		dbx.Params{"id": id},
	).One(&loc)
	if isNoRows(err) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get location", err)
	}
	return &loc, nil
}

func (q *Queries) LocationExists(id string) (bool, error) {
	var n int
	if err := q.query("SELECT COUNT(*) FROM locations WHERE id = {:id}", dbx.Params{"id": id}).Row(&n); err != nil {
		return false, storageErr("count locations", err)
	}
	return n > 0, nil
}

func (q *Queries) ListEventImages(eventID string) ([]models.Image, error) {
	return q.listImages("event_id", eventID)
}

func (q *Queries) ListLocationImages(locationID string) ([]models.Image, error) {
	return q.listImages("location_id", locationID)
}

func (q *Queries) listImages(column, id string) ([]models.Image, error) {
	images := []models.Image{}
	err := q.query(
		"SELECT id, url, ratio, width, height, event_id, location_id FROM images WHERE "+column+" = {:id} ORDER BY id",
		dbx.Params{"id": id},
	).All(&images)
	if err != nil {
		return nil, storageErr("list images", err)
	}
	return images, nil
}

func (q *Queries) GetCategory(id int64) (*models.TicketCategory, error) {
	return q.getCategory(id, "")
}

// LockCategory reads the category row and holds its lock until the transaction ends.
func (q *Queries) LockCategory(id int64) (*models.TicketCategory, error) {
	return q.getCategory(id, q.forUpdate())
}

func (q *Queries) getCategory(id int64, suffix string) (*models.TicketCategory, error) {
	var cat models.TicketCategory
	err := q.query("SELECT "+categoryColumns+" FROM ticket_categories WHERE id = {:id}"+suffix, dbx.Params{"id": id}).One(&cat)
	if isNoRows(err) {
		return nil, status.ErrCategoryNotFound
	}
	if err != nil {
		return nil, storageErr("get category", err)
	}
	return &cat, nil
}

func (q *Queries) ListCategories(eventID string) ([]models.TicketCategory, error) {
	cats := []models.TicketCategory{}
	err := q.query(
		"SELECT "+categoryColumns+" FROM ticket_categories WHERE event_id = {:event} ORDER BY id",
		dbx.Params{"event": eventID},
	).All(&cats)
	if err != nil {
		return nil, storageErr("list categories", err)
	}
	return cats, nil
}

func (q *Queries) CountCategories(eventID string) (int, error) {
	var n int
	if err := q.query("SELECT COUNT(*) FROM ticket_categories WHERE event_id = {:event}", dbx.Params{"event": eventID}).Row(&n); err != nil {
		return 0, storageErr("count categories", err)
	}
	return n, nil
}

// UpsertLocation creates the venue or refreshes its descriptive fields.
func (q *Queries) UpsertLocation(loc models.Location) error {
	cols := dbx.Params{
		"venue_name":  loc.VenueName,
		"address":     loc.Address,
		"country":     loc.Country,
		"state":       loc.State,
		"postal_code": loc.PostalCode,
		"description": loc.Description,
	}

	exists, err := q.LocationExists(loc.ID)
	if err != nil {
		return err
	}
	if exists {
		_, err = q.b.Update("locations", cols, dbx.HashExp{"id": loc.ID}).WithContext(q.ctx).Execute()
	} else {
		cols["id"] = loc.ID
		_, err = q.b.Insert("locations", cols).WithContext(q.ctx).Execute()
	}
	if err != nil {
		return storageErr("upsert location", err)
	}
	return nil
}

func (q *Queries) EventExists(id string) (bool, error) {
	var n int
	if err := q.query("SELECT COUNT(*) FROM events WHERE id = {:id}", dbx.Params{"id": id}).Row(&n); err != nil {
		return false, storageErr("count events", err)
	}
	return n > 0, nil
}

// UpsertEvent creates the event or refreshes its name, start time and type.
func (q *Queries) UpsertEvent(event models.Event) error {
	cols := dbx.Params{
		"name":        event.Name,
		"starts_at":   event.StartsAt.UTC(),
		"event_type":  event.EventType,
		"location_id": event.LocationID,
	}

	exists, err := q.EventExists(event.ID)
	if err != nil {
		return err
	}
	if exists {
		_, err = q.b.Update("events", cols, dbx.HashExp{"id": event.ID}).WithContext(q.ctx).Execute()
	} else {
		cols["id"] = event.ID
		_, err = q.b.Insert("events", cols).WithContext(q.ctx).Execute()
	}
	if err != nil {
		return storageErr("upsert event", err)
	}
	return nil
}

// CreateCategory stores a new category with every seat available.
func (q *Queries) CreateCategory(cat models.TicketCategory) (int64, error) {
	return q.insert("ticket_categories", dbx.Params{
		"event_id":        cat.EventID,
		"name":            cat.Name,
		"price":           cat.Price.StringFixed(2),
		"capacity":        cat.Capacity,
		"seats_available": cat.Capacity,
		"last_seat_no":    0,
	})
}

func (q *Queries) AddImage(img models.Image) (int64, error) {
	return q.insert("images", dbx.Params{
		"url":         img.URL,
		"ratio":       img.Ratio,
		"width":       img.Width,
		"height":      img.Height,
		"event_id":    img.EventID,
		"location_id": img.LocationID,
	})
}

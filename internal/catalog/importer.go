package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"ticketsales/internal/status"
	"ticketsales/internal/store"
	"ticketsales/models"

	"github.com/shopspring/decimal"
)

// CategoryNames are the tiers created for every imported event, cheapest first.
var CategoryNames = []string{"Cat 1", "Cat 2", "Cat 3"}

type Source interface {
	Events(ctx context.Context, page, size int) (*EventPage, error)
	Venue(ctx context.Context, id string) (*RemoteVenue, error)
}

type ImportStats struct {
	Events     int `json:"events"`
	Venues     int `json:"venues"`
	Categories int `json:"categories"`
	Images     int `json:"images"`
	Skipped    int `json:"skipped"`
}

// Importer copies events, venues, categories and images from a Source into the catalog.
// Running it again refreshes events and venues without duplicating categories or images.
type Importer struct {
	store  *store.Store
	source Source
	seats  int
	logger *slog.Logger
}

func NewImporter(s *store.Store, source Source, seatsPerCategory int, logger *slog.Logger) *Importer {
	if seatsPerCategory <= 0 {
		seatsPerCategory = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: s, source: source, seats: seatsPerCategory, logger: logger}
}

// Import walks the source page by page until count events were imported or the source
// runs out.
func (im *Importer) Import(ctx context.Context, count int) (ImportStats, error) {
	var stats ImportStats

	for page := 0; stats.Events < count; page++ {
		res, err := im.source.Events(ctx, page, PageSize)
		if err != nil {
			return stats, fmt.Errorf("fetch events page %d: %w", page, err)
		}

		events := res.Embedded.Events
		for _, ev := range events {
			if stats.Events >= count {
				break
			}
			if err := im.importEvent(ctx, ev, &stats); err != nil {
				if errors.Is(err, status.ErrStorage) || ctx.Err() != nil {
					return stats, err
				}
				stats.Skipped++
				im.logger.Warn("skipping event", "event_id", ev.ID, "error", err)
				continue
			}
			stats.Events++
			im.logger.Info("event imported", "event_id", ev.ID, "name", ev.Name, "imported", stats.Events)
		}

		if len(events) == 0 || (res.Page.TotalPages > 0 && page+1 >= res.Page.TotalPages) {
			break
		}
	}

	im.logger.Info("import finished",
		"events", stats.Events,
		"venues", stats.Venues,
		"categories", stats.Categories,
		"images", stats.Images,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

func (im *Importer) importEvent(ctx context.Context, ev RemoteEvent, stats *ImportStats) error {
	venueID := ev.VenueID()
	if ev.ID == "" || venueID == "" {
		return errors.New("event has no id or venue")
	}
	startsAt, err := ev.StartsAt()
	if err != nil {
		return err
	}

	if err := im.ensureVenue(ctx, venueID, stats); err != nil {
		return err
	}

	return im.store.InTx(ctx, func(q *store.Queries) error {
		exists, err := q.EventExists(ev.ID)
		if err != nil {
			return err
		}

		err = q.UpsertEvent(models.Event{
			ID:         ev.ID,
			Name:       ev.Name,
			StartsAt:   startsAt,
			EventType:  ev.Segment(),
			LocationID: venueID,
		})
		if err != nil {
			return err
		}

		if !exists {
			n, err := addImages(q, ev.Images, &ev.ID, nil)
			if err != nil {
				return err
			}
			stats.Images += n
		}

		existing, err := q.CountCategories(ev.ID)
		if err != nil || existing > 0 {
			return err
		}
		if len(ev.PriceRanges) == 0 {
			im.logger.Warn("event has no price range, no categories created", "event_id", ev.ID)
			return nil
		}

		for _, cat := range tieredCategories(ev.ID, ev.PriceRanges[0], im.seats) {
			if _, err := q.CreateCategory(cat); err != nil {
				return err
			}
			stats.Categories++
		}
		return nil
	})
}

func (im *Importer) ensureVenue(ctx context.Context, venueID string, stats *ImportStats) error {
	exists, err := im.store.Queries(ctx).LocationExists(venueID)
	if err != nil || exists {
		return err
	}

	venue, err := im.source.Venue(ctx, venueID)
	if err != nil {
		return fmt.Errorf("fetch venue %s: %w", venueID, err)
	}

	return im.store.InTx(ctx, func(q *store.Queries) error {
		err := q.UpsertLocation(models.Location{
			ID:          venueID,
			VenueName:   venue.Name,
			Address:     orDefault(venue.Address.Line1, "No Address Provided"),
			Country:     orDefault(venue.Country.Name, "No Country Provided"),
			State:       orDefault(venue.State.Name, "No State Provided"),
			PostalCode:  orDefault(venue.PostalCode, "No Postal Code Provided"),
			Description: venue.Description,
		})
		if err != nil {
			return err
		}
		stats.Venues++

		n, err := addImages(q, venue.Images, nil, &venueID)
		stats.Images += n
		return err
	})
}

// tieredCategories prices the tiers evenly from the range's minimum up to its maximum.
func tieredCategories(eventID string, pr PriceRange, seats int) []models.TicketCategory {
	low := decimal.NewFromFloat(pr.Min)
	high := decimal.NewFromFloat(pr.Max)
	if high.LessThan(low) {
		low, high = high, low
	}
	step := high.Sub(low).Div(decimal.NewFromInt(int64(len(CategoryNames) - 1)))

	cats := make([]models.TicketCategory, 0, len(CategoryNames))
	for i, name := range CategoryNames {
		cats = append(cats, models.TicketCategory{
			EventID:  eventID,
			Name:     name,
			Price:    low.Add(step.Mul(decimal.NewFromInt(int64(i)))).Round(2),
			Capacity: seats,
		})
	}
	return cats
}

func addImages(q *store.Queries, images []RemoteImage, eventID, locationID *string) (int, error) {
	n := 0
	for _, img := range images {
		if img.URL == "" {
			continue
		}
		_, err := q.AddImage(models.Image{
			URL:        img.URL,
			Ratio:      img.Ratio,
			Width:      img.Width,
			Height:     img.Height,
			EventID:    eventID,
			LocationID: locationID,
		})
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

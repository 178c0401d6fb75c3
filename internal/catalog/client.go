package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"ticketsales/internal/status"
	"ticketsales/utils"
)

const (
	// PageSize is the largest page the Discovery API serves.
	PageSize = 20

	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 8 * time.Second
	maxAttempts    = 4
)

// Client reads events and venues from the Ticketmaster Discovery API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *utils.CircuitBreaker
	logger  *slog.Logger

	backoff     time.Duration
	maxAttempts int
}

func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		breaker: utils.NewCircuitBreakerWithSettings("ticketmaster", utils.BreakerSettings{
			MinRequests: 5,
			Timeout:     30 * time.Second,
		}),
		logger:      logger,
		backoff:     initialBackoff,
		maxAttempts: maxAttempts,
	}
}

type Page struct {
	Size          int `json:"size"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
	Number        int `json:"number"`
}

type EventPage struct {
	Embedded struct {
		Events []RemoteEvent `json:"events"`
	} `json:"_embedded"`
	Page Page `json:"page"`
}

type RemoteImage struct {
	URL    string `json:"url"`
	Ratio  string `json:"ratio"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type PriceRange struct {
	Currency string  `json:"currency"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

type RemoteEvent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Dates struct {
		Start struct {
			LocalDate string `json:"localDate"`
			DateTime  string `json:"dateTime"`
		} `json:"start"`
	} `json:"dates"`
	Classifications []struct {
		Segment struct {
			Name string `json:"name"`
		} `json:"segment"`
	} `json:"classifications"`
	PriceRanges []PriceRange  `json:"priceRanges"`
	Images      []RemoteImage `json:"images"`
	Embedded    struct {
		Venues []struct {
			ID string `json:"id"`
		} `json:"venues"`
	} `json:"_embedded"`
}

// VenueID is the id of the event's first venue, or "".
func (e RemoteEvent) VenueID() string {
	if len(e.Embedded.Venues) == 0 {
		return ""
	}
	return e.Embedded.Venues[0].ID
}

func (e RemoteEvent) Segment() string {
	if len(e.Classifications) == 0 {
		return ""
	}
	return e.Classifications[0].Segment.Name
}

// StartsAt parses the start time, falling back to midnight UTC of the local date.
func (e RemoteEvent) StartsAt() (time.Time, error) {
	if e.Dates.Start.DateTime != "" {
		t, err := time.Parse(time.RFC3339, e.Dates.Start.DateTime)
		if err != nil {
			return time.Time{}, fmt.Errorf("event %s start: %w", e.ID, err)
		}
		return t.UTC(), nil
	}
	if e.Dates.Start.LocalDate != "" {
		t, err := time.Parse(time.DateOnly, e.Dates.Start.LocalDate)
		if err != nil {
			return time.Time{}, fmt.Errorf("event %s start: %w", e.ID, err)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("event %s has no start date", e.ID)
}

type RemoteVenue struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address struct {
		Line1 string `json:"line1"`
	} `json:"address"`
	Country struct {
		Name string `json:"name"`
	} `json:"country"`
	State struct {
		Name string `json:"name"`
	} `json:"state"`
	PostalCode  string        `json:"postalCode"`
	Description string        `json:"description"`
	Images      []RemoteImage `json:"images"`
}

// Events fetches one page of events.
func (c *Client) Events(ctx context.Context, page, size int) (*EventPage, error) {
	if size <= 0 || size > PageSize {
		size = PageSize
	}
	params := url.Values{
		"size": {strconv.Itoa(size)},
		"page": {strconv.Itoa(page)},
	}

	var out EventPage
	if err := c.get(ctx, "/events.json", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Venue fetches one venue by id.
func (c *Client) Venue(ctx context.Context, id string) (*RemoteVenue, error) {
	var out RemoteVenue
	if err := c.get(ctx, "/venues/"+url.PathEscape(id)+".json", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ticketmaster responded %d: %s", e.code, e.body)
}

var errMalformedBody = errors.New("malformed response body")

// rejected reports a 4xx answer other than throttling. The API is healthy when it sends one,
// so it does not count against the breaker.
func rejected(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code >= 400 && se.code < 500 && se.code != http.StatusTooManyRequests
}

func retryable(err error) bool {
	if errors.Is(err, utils.ErrOpenState) || errors.Is(err, utils.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, errMalformedBody) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

// get performs a GET with exponential backoff on throttling, server errors and network
// failures. Every attempt passes through the circuit breaker.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)
	endpoint := c.baseURL + path + "?" + params.Encode()

	backoff := c.backoff
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var rejectedErr error
		_, err = c.breaker.Execute(ctx, func() (any, error) {
			if err := c.do(ctx, endpoint, out); err != nil {
				if rejected(err) {
					rejectedErr = err
					return nil, nil
				}
				return nil, err
			}
			return nil, nil
		})
		if err == nil {
			err = rejectedErr
		}
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == c.maxAttempts {
			break
		}

		c.logger.Warn("ticketmaster request failed, will retry", "path", path, "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", status.ErrNotFound, path)
	}
	return fmt.Errorf("ticketmaster %s: %w", path, err)
}

func (c *Client) do(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}

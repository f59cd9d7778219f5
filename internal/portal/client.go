package portal

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/colthorp/planning-cli-go/internal/logging"
	"github.com/colthorp/planning-cli-go/internal/model"
)

// DetailError is returned when the portal answers a detail request with a
// non-success status.
type DetailError struct {
	StatusCode int
	Message    string
}

func (e *DetailError) Error() string {
	return fmt.Sprintf("portal error (HTTP %d): %s", e.StatusCode, e.Message)
}

// ErrNoDetail is returned when a detail page carries neither a teacher nor a room.
var ErrNoDetail = errors.New("detail page has no teacher or room")

// Client fetches event details with a lightweight request that reuses the
// authenticated session's cookies.
type Client struct {
	profile    Profile
	transport  Transport
	limiter    *rate.Limiter
	logger     *logging.Logger
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTransport replaces the HTTP transport.
func WithTransport(t Transport) ClientOption {
	return func(c *Client) { c.transport = t }
}

// WithRateLimit throttles requests to rps per second. rps <= 0 disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithMaxRetries sets the number of attempts per request.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithSleep replaces the back-off sleep (for tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = fn }
}

// NewClient creates a detail client for profile.
func NewClient(profile Profile, opts ...ClientOption) *Client {
	c := &Client{
		profile:    profile,
		transport:  NewHTTPTransport(30 * time.Second),
		limiter:    rate.NewLimiter(rate.Inf, 0),
		logger:     logging.Discard(),
		maxRetries: 3,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DetailURL returns the detail page address for an event id.
func (c *Client) DetailURL(id string) string {
	return fmt.Sprintf(c.profile.DetailURL, url.QueryEscape(id))
}

// FetchDetail returns the teacher and room of event id.
// Retries automatically on connection errors and HTTP 5xx or 429 responses
// with exponential back-off.
func (c *Client) FetchDetail(ctx context.Context, session *model.SessionState, id string) (model.EventDetail, error) {
	urlStr := c.DetailURL(id)
	header := http.Header{}
	if cookie := session.Header(); cookie != "" {
		header.Set("Cookie", cookie)
	}

	log := c.logger.WithContext(ctx)
	log.Debug("GET detail", "url", urlStr)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return model.EventDetail{}, err
		}

		resp, err := c.transport.Get(ctx, urlStr, header)
		if err != nil {
			if ctx.Err() != nil {
				return model.EventDetail{}, ctx.Err()
			}
			lastErr = err
			if attempt < c.maxRetries {
				wait := backoff(attempt)
				log.Debug("detail attempt failed (connection error); retrying", "attempt", attempt, "wait", wait)
				if err := c.sleep(ctx, wait); err != nil {
					return model.EventDetail{}, err
				}
				continue
			}
			return model.EventDetail{}, errors.Wrapf(err, "fetch detail %s", id)
		}

		// Check for retryable errors
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &DetailError{StatusCode: resp.StatusCode, Message: string(resp.Body)}
			if attempt < c.maxRetries {
				wait := backoff(attempt)
				if resp.StatusCode == http.StatusTooManyRequests {
					if ra := resp.Header.Get("Retry-After"); ra != "" {
						if secs, err := strconv.Atoi(ra); err == nil {
							wait = time.Duration(secs) * time.Second
						}
					}
				}
				log.Debug("detail attempt failed; retrying", "attempt", attempt, "status", resp.StatusCode, "wait", wait)
				if err := c.sleep(ctx, wait); err != nil {
					return model.EventDetail{}, err
				}
				continue
			}
			return model.EventDetail{}, lastErr
		}

		// Non-retryable error, including a redirect to the login page
		if resp.StatusCode >= 300 {
			return model.EventDetail{}, &DetailError{StatusCode: resp.StatusCode, Message: truncate(string(resp.Body), 200)}
		}

		detail, err := c.ParseDetail(resp.Body)
		if err != nil {
			return model.EventDetail{}, errors.Wrapf(err, "parse detail %s", id)
		}
		log.Debug("detail fetched", "id", id, "teacher", detail.Teacher, "room", detail.Room)
		return detail, nil
	}

	return model.EventDetail{}, lastErr
}

// ParseDetail extracts the teacher and room from a detail page. Fields are
// found in two-cell table rows whose first cell contains the profile label.
func (c *Client) ParseDetail(body []byte) (model.EventDetail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return model.EventDetail{}, err
	}

	var detail model.EventDetail
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		label := cells.First().Text()
		value := collapseSpace(cells.Eq(1).Text())
		switch {
		case detail.Teacher == "" && strings.Contains(label, c.profile.TeacherLabel):
			detail.Teacher = value
		case detail.Room == "" && strings.Contains(label, c.profile.RoomLabel):
			detail.Room = value
		}
	})

	if detail.Teacher == "" && detail.Room == "" {
		return detail, ErrNoDetail
	}
	return detail, nil
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<(attempt-1)) * time.Second
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

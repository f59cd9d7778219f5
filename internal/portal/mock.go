package portal

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// InMemoryTransport is a lightweight simulation of the portal's event detail
// endpoint. Pages are looked up by the NumEve query value.
type InMemoryTransport struct {
	mu         sync.Mutex
	pages      map[string]string
	failures   map[string][]int // id -> status codes returned before success
	RequestLog []RequestLogEntry
}

// RequestLogEntry records a request made to the transport.
type RequestLogEntry struct {
	URL    string
	Cookie string
}

// NewInMemoryTransport creates an empty in-memory transport.
func NewInMemoryTransport() *InMemoryTransport {
	return &InMemoryTransport{
		pages:    make(map[string]string),
		failures: make(map[string][]int),
	}
}

// Seed registers the HTML served for an event id.
func (t *InMemoryTransport) Seed(id, html string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pages[id] = html
}

// SeedDetail registers a detail page built from teacher and room.
func (t *InMemoryTransport) SeedDetail(id, teacher, room string) {
	t.Seed(id, DetailHTML(teacher, room))
}

// FailWith makes the next requests for id return the given status codes, in order.
func (t *InMemoryTransport) FailWith(id string, statuses ...int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[id] = append(t.failures[id], statuses...)
}

// RequestsMade returns the number of requests made to this transport.
func (t *InMemoryTransport) RequestsMade() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.RequestLog)
}

// RequestsFor returns the number of requests made for an event id.
func (t *InMemoryTransport) RequestsFor(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.RequestLog {
		if eventID(r.URL) == id {
			n++
		}
	}
	return n
}

// Get simulates a detail page request.
func (t *InMemoryTransport) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.RequestLog = append(t.RequestLog, RequestLogEntry{URL: url, Cookie: header.Get("Cookie")})

	id := eventID(url)
	if queued := t.failures[id]; len(queued) > 0 {
		t.failures[id] = queued[1:]
		return &Response{StatusCode: queued[0], Header: http.Header{}, Body: []byte("error")}, nil
	}

	html, ok := t.pages[id]
	if !ok {
		return &Response{StatusCode: http.StatusNotFound, Header: http.Header{}, Body: []byte("not found")}, nil
	}
	return &Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(html)}, nil
}

func eventID(url string) string {
	_, after, ok := strings.Cut(url, "NumEve=")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(after, "&")
	return id
}

// DetailHTML renders a minimal detail page in the portal's table layout.
func DetailHTML(teacher, room string) string {
	return fmt.Sprintf(`<html><body><table>
<tr><td>Matière</td><td>Réseaux</td></tr>
<tr><td>Intervenant(s) :</td><td> %s </td></tr>
<tr><td>Salle(s) :</td><td>%s</td></tr>
</table></body></html>`, teacher, room)
}

package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/offerstream/internal/domain"
)

// SessionFetcher loads a session with its current offers for resync.
type SessionFetcher interface {
	FetchSession(ctx context.Context, id int64) (domain.TradingSession, error)
}

// HTTPSessionClient reads sessions from the server's read API.
type HTTPSessionClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPSessionClient creates a client for the API rooted at baseURL
// (e.g. "http://localhost:8080").
func NewHTTPSessionClient(baseURL string, timeout time.Duration) *HTTPSessionClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSessionClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchSession returns the session with its offers. An unknown session yields
// domain.ErrNotFound.
func (c *HTTPSessionClient) FetchSession(ctx context.Context, id int64) (domain.TradingSession, error) {
	var sess domain.TradingSession
	if err := c.get(ctx, fmt.Sprintf("/api/sessions/%d", id), &sess); err != nil {
		return domain.TradingSession{}, fmt.Errorf("viewer: fetch session %d: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns the session catalog without offers.
func (c *HTTPSessionClient) ListSessions(ctx context.Context) ([]domain.TradingSession, error) {
	var sessions []domain.TradingSession
	if err := c.get(ctx, "/api/sessions", &sessions); err != nil {
		return nil, fmt.Errorf("viewer: list sessions: %w", err)
	}
	return sessions, nil
}

func (c *HTTPSessionClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/castwatch/internal/cast"
)

// HubClient fetches casts from a hub-style HTTP API. One client is shared
// by all channel monitors; the rate limiter throttles the combined
// request rate since the hub is a single upstream.
type HubClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHubClient creates a HubClient. requestsPerSecond bounds the combined
// request rate across all channels.
func NewHubClient(baseURL string, timeout time.Duration, requestsPerSecond float64) *HubClient {
	return &HubClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// castsResponse is the hub's wire format for a batch of casts.
type castsResponse struct {
	Casts []wireCast `json:"casts"`
}

type wireCast struct {
	Hash      string    `json:"hash"`
	AuthorFID int64     `json:"author_fid"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Likes     int       `json:"likes"`
	Recasts   int       `json:"recasts"`
	Replies   int       `json:"replies"`
}

// FetchCasts implements Source against the hub API.
func (h *HubClient) FetchCasts(ctx context.Context, channel string, since time.Time, limit int) ([]cast.Cast, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("channel", channel)
	q.Set("limit", strconv.Itoa(limit))
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/v1/casts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Castwatch/0.1 (https://github.com/abelbrown/castwatch)")

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: hub returned %s", ErrUnavailable, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hub error: %s", resp.Status)
	}

	var body castsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	casts := make([]cast.Cast, 0, len(body.Casts))
	for _, w := range body.Casts {
		casts = append(casts, cast.Cast{
			ID:        w.Hash,
			AuthorID:  strconv.FormatInt(w.AuthorFID, 10),
			Handle:    w.Username,
			Text:      w.Text,
			Timestamp: w.Timestamp,
			Likes:     w.Likes,
			Reposts:   w.Recasts,
			Replies:   w.Replies,
		})
	}

	// The hub promises timestamp order; enforce it anyway so a misbehaving
	// upstream cannot corrupt downstream cursor handling.
	sort.SliceStable(casts, func(i, j int) bool {
		return casts[i].Timestamp.Before(casts[j].Timestamp)
	})
	return casts, nil
}

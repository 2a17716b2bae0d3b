// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs
// for live-stream lookup, using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// maxLoginsPerRequest is the Helix /streams batch limit.
const maxLoginsPerRequest = 100

// Stream is one currently-live broadcast. ID is the stream session id: it changes
// every time a channel goes live, which is what makes same-broadcast suppression work
// even when the title changes mid-stream.
type Stream struct {
	ID        string    `json:"id"`
	UserLogin string    `json:"user_login"`
	Title     string    `json:"title"`
	StartedAt time.Time `json:"started_at"`
}

// HelixClient provides the single method the relay needs: which tracked logins are live.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
	BaseURL        string // defaults to the Helix endpoint
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return "https://api.twitch.tv/helix"
}

// GetStreams returns the live streams among logins, batching up to 100 logins per
// request. A 401 triggers one token invalidate-and-retry; a second failure gives up
// for this cycle.
func (hc *HelixClient) GetStreams(ctx context.Context, logins []string) ([]Stream, error) {
	if len(logins) == 0 {
		return nil, nil
	}
	var out []Stream
	for i := 0; i < len(logins); i += maxLoginsPerRequest {
		end := i + maxLoginsPerRequest
		if end > len(logins) {
			end = len(logins)
		}
		streams, err := hc.getStreamsChunk(ctx, logins[i:end])
		if err != nil {
			return nil, err
		}
		out = append(out, streams...)
	}
	return out, nil
}

func (hc *HelixClient) getStreamsChunk(ctx context.Context, logins []string) ([]Stream, error) {
	streams, status, err := hc.doStreamsRequest(ctx, logins)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		slog.Debug("twitch: 401 from helix, refreshing app token")
		hc.AppTokenSource.Invalidate()
		streams, status, err = hc.doStreamsRequest(ctx, logins)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("helix streams request failed: HTTP %d", status)
	}
	return streams, nil
}

func (hc *HelixClient) doStreamsRequest(ctx context.Context, logins []string) ([]Stream, int, error) {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.baseURL()+"/streams", nil)
	if err != nil {
		return nil, 0, err
	}
	q := req.URL.Query()
	for _, login := range logins {
		q.Add("user_login", login)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, resp.StatusCode, err
	}
	return body.Data, resp.StatusCode, nil
}

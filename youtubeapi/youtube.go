// Package youtubeapi wraps the YouTube Data API for the relay's two needs: resolving a
// user-supplied channel identifier (canonical UC id, profile URL, or @handle) to a
// canonical channel id, and fetching a channel's most recent video by publish date.
// All calls use a static API key; a missing key disables the watcher rather than erroring.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

var channelIDRe = regexp.MustCompile(`^UC[0-9A-Za-z_-]{21,}$`)

// ErrNoAPIKey is returned by operations that need the Data API when no key is configured.
var ErrNoAPIKey = errors.New("youtube api key not configured")

// Video is the newest item found on a channel.
type Video struct {
	ID    string
	Title string
}

// Client calls the YouTube Data API with an API key.
type Client struct {
	apiKey string
	opts   []option.ClientOption
}

// New returns a Client. Extra options (endpoint overrides in tests) are appended
// after the API key.
func New(apiKey string, opts ...option.ClientOption) *Client {
	return &Client{apiKey: apiKey, opts: opts}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

func (c *Client) service(ctx context.Context) (*yt.Service, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	opts := append([]option.ClientOption{option.WithAPIKey(c.apiKey)}, c.opts...)
	return yt.NewService(ctx, opts...)
}

// ResolveChannelID turns input into a canonical UCxxxx channel id. Accepted forms:
// a canonical id, a channel/profile URL, or an @handle (with or without the @).
// Handle resolution tries an exact handle lookup first, then a search-by-name
// heuristic. Returns "" with a nil error when nothing matched.
func (c *Client) ResolveChannelID(ctx context.Context, input string) (string, error) {
	s := strings.TrimSpace(input)
	if channelIDRe.MatchString(s) {
		return s, nil
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		extracted := extractFromURL(s)
		if channelIDRe.MatchString(extracted) {
			return extracted, nil
		}
		if strings.HasPrefix(extracted, "@") {
			s = extracted
		}
	}
	handle := s
	if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}

	svc, err := c.service(ctx)
	if err != nil {
		return "", err
	}

	resp, err := svc.Channels.List([]string{"id"}).ForHandle(handle).Context(ctx).Do()
	if err == nil && len(resp.Items) > 0 {
		if id := resp.Items[0].Id; strings.HasPrefix(id, "UC") {
			return id, nil
		}
	}

	search, err := svc.Search.List([]string{"snippet"}).
		Type("channel").
		Q(strings.TrimPrefix(handle, "@")).
		MaxResults(1).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube channel search: %w", err)
	}
	if len(search.Items) > 0 && search.Items[0].Id != nil {
		if id := search.Items[0].Id.ChannelId; strings.HasPrefix(id, "UC") {
			return id, nil
		}
	}
	return "", nil
}

// LatestVideo returns the channel's most recent video by publish date, or nil when
// the channel has none.
func (c *Client) LatestVideo(ctx context.Context, channelID string) (*Video, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Search.List([]string{"snippet"}).
		ChannelId(channelID).
		Order("date").
		MaxResults(1).
		Type("video").
		SafeSearch("none").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube latest video: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Id == nil || resp.Items[0].Id.VideoId == "" {
		return nil, nil
	}
	it := resp.Items[0]
	title := ""
	if it.Snippet != nil {
		title = it.Snippet.Title
	}
	return &Video{ID: it.Id.VideoId, Title: title}, nil
}

// extractFromURL pulls a UC channel id or an @handle out of a YouTube URL path.
func extractFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	parts := strings.FieldsFunc(parsed.Path, func(r rune) bool { return r == '/' })
	for i, p := range parts {
		if p == "channel" && i+1 < len(parts) && channelIDRe.MatchString(parts[i+1]) {
			return parts[i+1]
		}
	}
	for _, p := range parts {
		if strings.HasPrefix(p, "@") {
			return p
		}
	}
	return ""
}

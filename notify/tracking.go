package notify

import (
	"context"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/onnwee/genesis-relay/state"
	"github.com/onnwee/genesis-relay/telemetry"
)

var twitchLoginRe = regexp.MustCompile(`^[a-z0-9_]{3,25}$`)

// AddTwitch adds a login to the tracked set. The login is normalized to lower case;
// re-adding an already tracked login is rejected without changing the set.
func (s *Service) AddTwitch(login string) Result {
	norm := strings.ToLower(strings.TrimSpace(login))
	if !twitchLoginRe.MatchString(norm) {
		return fail("invalid twitch login: %q", login)
	}
	var added bool
	err := s.Store.UpdateTracking(func(t *state.Tracking) error {
		if slices.Contains(t.Twitch, norm) {
			return nil
		}
		t.Twitch = append(t.Twitch, norm)
		added = true
		return nil
	})
	if err != nil {
		return fail("saving tracked channels: %v", err)
	}
	if !added {
		return fail("twitch channel already tracked: %s", norm)
	}
	s.refreshTrackedGauges()
	return ok("twitch channel added: %s", norm)
}

// RemoveTwitch untracks a login and purges its notified substate.
func (s *Service) RemoveTwitch(login string) Result {
	norm := strings.ToLower(strings.TrimSpace(login))
	var removed bool
	err := s.Store.UpdateTracking(func(t *state.Tracking) error {
		if !slices.Contains(t.Twitch, norm) {
			return nil
		}
		t.Twitch = slices.DeleteFunc(t.Twitch, func(v string) bool { return v == norm })
		removed = true
		return nil
	})
	if err != nil {
		return fail("saving tracked channels: %v", err)
	}
	if !removed {
		return fail("twitch channel not tracked: %s", norm)
	}
	if err := s.Store.UpdateNotified(func(n *state.Notified) error {
		delete(n.Twitch, norm)
		return nil
	}); err != nil {
		slog.Warn("failed to purge notified entry", slog.String("login", norm), slog.Any("err", err))
	}
	s.refreshTrackedGauges()
	return ok("twitch channel removed: %s", norm)
}

// ListTwitch returns the tracked logins in insertion order.
func (s *Service) ListTwitch() ([]string, error) {
	t, err := s.Store.Tracking()
	if err != nil {
		return nil, err
	}
	return t.Twitch, nil
}

// AddYouTube resolves input to a canonical channel id and tracks it.
func (s *Service) AddYouTube(ctx context.Context, input string) Result {
	cid, err := s.Videos.ResolveChannelID(ctx, input)
	if err != nil || cid == "" {
		return fail("could not resolve channel id; use an @handle or a link like https://www.youtube.com/@handle")
	}
	var added bool
	err = s.Store.UpdateTracking(func(t *state.Tracking) error {
		if slices.Contains(t.YouTube, cid) {
			return nil
		}
		t.YouTube = append(t.YouTube, cid)
		added = true
		return nil
	})
	if err != nil {
		return fail("saving tracked channels: %v", err)
	}
	if !added {
		return fail("youtube channel already tracked: %s", cid)
	}
	s.refreshTrackedGauges()
	return ok("youtube channel added: %s", cid)
}

// RemoveYouTube untracks a channel. Resolution is best effort: when it fails, the
// raw input is tried as a stored id so removal still works without API access.
func (s *Service) RemoveYouTube(ctx context.Context, input string) Result {
	target := strings.TrimSpace(input)
	if cid, err := s.Videos.ResolveChannelID(ctx, input); err == nil && cid != "" {
		target = cid
	}
	var removed bool
	err := s.Store.UpdateTracking(func(t *state.Tracking) error {
		if !slices.Contains(t.YouTube, target) {
			return nil
		}
		t.YouTube = slices.DeleteFunc(t.YouTube, func(v string) bool { return v == target })
		removed = true
		return nil
	})
	if err != nil {
		return fail("saving tracked channels: %v", err)
	}
	if !removed {
		return fail("youtube channel not tracked: %s", target)
	}
	if err := s.Store.UpdateNotified(func(n *state.Notified) error {
		delete(n.YouTube, target)
		return nil
	}); err != nil {
		slog.Warn("failed to purge notified entry", slog.String("channel_id", target), slog.Any("err", err))
	}
	s.refreshTrackedGauges()
	return ok("youtube channel removed: %s", target)
}

// ListYouTube returns the tracked channel ids in insertion order.
func (s *Service) ListYouTube() ([]string, error) {
	t, err := s.Store.Tracking()
	if err != nil {
		return nil, err
	}
	return t.YouTube, nil
}

// ResetForum clears the forum's persisted id, re-arming re-announcement.
func (s *Service) ResetForum() Result {
	if err := s.Store.UpdateNotified(func(n *state.Notified) error {
		n.Forum.LastPostID = nil
		return nil
	}); err != nil {
		return fail("resetting forum state: %v", err)
	}
	return ok("forum state reset; next new post will be announced")
}

// ResetOrders clears the orders thread's persisted id.
func (s *Service) ResetOrders() Result {
	if err := s.Store.UpdateNotified(func(n *state.Notified) error {
		n.Orders.LastOrderID = nil
		return nil
	}); err != nil {
		return fail("resetting orders state: %v", err)
	}
	return ok("orders state reset; next new order will be announced")
}

// ResetTwitch clears the persisted session id for one login.
func (s *Service) ResetTwitch(login string) Result {
	norm := strings.ToLower(strings.TrimSpace(login))
	if err := s.Store.UpdateNotified(func(n *state.Notified) error {
		delete(n.Twitch, norm)
		return nil
	}); err != nil {
		return fail("resetting twitch state: %v", err)
	}
	return ok("twitch state reset for %s", norm)
}

// ResetYouTube clears the persisted video id for one channel.
func (s *Service) ResetYouTube(channelID string) Result {
	cid := strings.TrimSpace(channelID)
	if err := s.Store.UpdateNotified(func(n *state.Notified) error {
		delete(n.YouTube, cid)
		return nil
	}); err != nil {
		return fail("resetting youtube state: %v", err)
	}
	return ok("youtube state reset for %s", cid)
}

func (s *Service) refreshTrackedGauges() {
	t, err := s.Store.Tracking()
	if err != nil {
		return
	}
	telemetry.SetTracked("twitch", len(t.Twitch))
	telemetry.SetTracked("youtube", len(t.YouTube))
}

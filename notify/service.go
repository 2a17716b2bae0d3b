package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/genesis-relay/forum"
	"github.com/onnwee/genesis-relay/state"
	"github.com/onnwee/genesis-relay/telemetry"
	"github.com/onnwee/genesis-relay/twitchapi"
	"github.com/onnwee/genesis-relay/youtubeapi"
)

// Message prefixes. Truncation budgets account for these plus the item URL.
const (
	ForumPrefix   = "New forum post:\n"
	OrdersPrefix  = "New order:\n"
	TwitchPrefix  = "Live on Twitch: "
	YouTubePrefix = "New video on YouTube: "
)

// titleLimit bounds stream/video titles inside a notification.
const titleLimit = 1900

// ThreadSource is the forum adapter boundary.
type ThreadSource interface {
	LatestPost(ctx context.Context) (*forum.Post, error)
	ThreadURL() string
}

// StreamSource is the live-stream adapter boundary.
type StreamSource interface {
	GetStreams(ctx context.Context, logins []string) ([]twitchapi.Stream, error)
}

// VideoSource is the video-channel adapter boundary.
type VideoSource interface {
	Enabled() bool
	ResolveChannelID(ctx context.Context, input string) (string, error)
	LatestVideo(ctx context.Context, channelID string) (*youtubeapi.Video, error)
}

// Service owns the detection state machine for all source kinds. Each kind has
// exactly one poller goroutine, and all persisted writes funnel through the
// store's exclusive lock, so same-kind cycles never race.
type Service struct {
	Store     *state.Store
	Messenger Messenger
	Forum     ThreadSource
	Orders    ThreadSource
	Streams   StreamSource
	Videos    VideoSource

	ForumChannelID         string
	OrdersChannelID        string
	NotificationsChannelID string

	// HistoryLookback bounds the duplicate-guard scan of channel history.
	HistoryLookback int
}

func (s *Service) lookback() int {
	if s.HistoryLookback > 0 {
		return s.HistoryLookback
	}
	return 200
}

// checkSendable verifies the destination channel is usable, returning the missing
// capability names otherwise.
func (s *Service) checkSendable(channelID string) ([]string, error) {
	perms, err := s.Messenger.Permissions(channelID)
	if err != nil {
		return nil, fmt.Errorf("permission check for channel %s: %w", channelID, err)
	}
	return perms.Missing(), nil
}

// runThreadOnce is the shared forum/orders cycle: latest post, history guard,
// decision table, send, persist.
func (s *Service) runThreadOnce(ctx context.Context, src ThreadSource, channelID, prefix, kind string,
	lastID func(*state.Notified) *string, setID func(*state.Notified, string)) error {
	post, err := src.LatestPost(ctx)
	if err != nil {
		return fmt.Errorf("%s fetch: %w", kind, err)
	}

	missing, err := s.checkSendable(channelID)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		slog.Warn("skipping cycle: missing channel permissions",
			slog.String("source", kind),
			slog.String("channel_id", channelID),
			slog.String("missing", strings.Join(missing, ", ")))
		return nil
	}

	history, err := s.Messenger.History(channelID, s.lookback())
	if err != nil {
		return fmt.Errorf("%s history: %w", kind, err)
	}
	inHistory := historyHas(history, post.URL)

	notified, err := s.Store.Notified()
	if err != nil {
		return err
	}
	last := ""
	if p := lastID(&notified); p != nil {
		last = *p
	}

	d := Decide(inHistory, last, post.ID)
	slog.Debug("thread check",
		slog.String("source", kind),
		slog.String("current_id", post.ID),
		slog.String("last_id", last),
		slog.Bool("in_history", inHistory),
		slog.Bool("send", d.Send))

	if d.Send {
		text := forum.TruncateForMessage(post.Text, prefix, post.URL)
		if err := s.Messenger.Send(channelID, prefix+post.URL+"\n\n"+text); err != nil {
			return fmt.Errorf("%s send: %w", kind, err)
		}
		telemetry.CountNotification(kind)
		slog.Info("notification sent", slog.String("source", kind), slog.String("id", post.ID))
	}
	if d.Persist {
		return s.Store.UpdateNotified(func(n *state.Notified) error {
			setID(n, post.ID)
			return nil
		})
	}
	return nil
}

// RunForumOnce executes one forum detection cycle.
func (s *Service) RunForumOnce(ctx context.Context) error {
	return s.runThreadOnce(ctx, s.Forum, s.ForumChannelID, ForumPrefix, "forum",
		func(n *state.Notified) *string { return n.Forum.LastPostID },
		func(n *state.Notified, id string) { n.Forum.LastPostID = &id })
}

// RunOrdersOnce executes one orders-thread detection cycle.
func (s *Service) RunOrdersOnce(ctx context.Context) error {
	return s.runThreadOnce(ctx, s.Orders, s.OrdersChannelID, OrdersPrefix, "orders",
		func(n *state.Notified) *string { return n.Orders.LastOrderID },
		func(n *state.Notified, id string) { n.Orders.LastOrderID = &id })
}

// RunTwitchOnce polls all tracked logins in one batched request and announces
// streams whose session id is new. The stream URL is stable per channel, so the
// history guard does not apply here; the session id alone deduplicates.
func (s *Service) RunTwitchOnce(ctx context.Context) error {
	tracking, err := s.Store.Tracking()
	if err != nil {
		return err
	}
	if len(tracking.Twitch) == 0 {
		return nil
	}

	streams, err := s.Streams.GetStreams(ctx, tracking.Twitch)
	if err != nil {
		return fmt.Errorf("twitch streams: %w", err)
	}
	if len(streams) == 0 {
		return nil
	}

	missing, err := s.checkSendable(s.NotificationsChannelID)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		slog.Warn("skipping cycle: missing channel permissions",
			slog.String("source", "twitch"),
			slog.String("channel_id", s.NotificationsChannelID),
			slog.String("missing", strings.Join(missing, ", ")))
		return nil
	}

	notified, err := s.Store.Notified()
	if err != nil {
		return err
	}

	var errs []error
	announced := map[string]string{}
	for _, stream := range streams {
		login := strings.ToLower(stream.UserLogin)
		if login == "" || stream.ID == "" {
			continue
		}
		if notified.Twitch[login] == stream.ID {
			continue
		}
		url := "https://twitch.tv/" + login
		if err := s.Messenger.Send(s.NotificationsChannelID, TwitchPrefix+url+"\n"+clipRunes(stream.Title, titleLimit)); err != nil {
			errs = append(errs, fmt.Errorf("send for %s: %w", login, err))
			continue
		}
		telemetry.CountNotification("twitch")
		slog.Info("notification sent", slog.String("source", "twitch"), slog.String("login", login), slog.String("session_id", stream.ID))
		announced[login] = stream.ID
	}

	if len(announced) > 0 {
		if err := s.Store.UpdateNotified(func(n *state.Notified) error {
			for login, id := range announced {
				n.Twitch[login] = id
			}
			return nil
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunYouTubeOnce checks each tracked channel's newest video. Video deep links are
// unique per item, so the history guard protects against re-announcing after a
// state-file loss.
func (s *Service) RunYouTubeOnce(ctx context.Context) error {
	if !s.Videos.Enabled() {
		return nil
	}
	tracking, err := s.Store.Tracking()
	if err != nil {
		return err
	}
	if len(tracking.YouTube) == 0 {
		return nil
	}

	missing, err := s.checkSendable(s.NotificationsChannelID)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		slog.Warn("skipping cycle: missing channel permissions",
			slog.String("source", "youtube"),
			slog.String("channel_id", s.NotificationsChannelID),
			slog.String("missing", strings.Join(missing, ", ")))
		return nil
	}

	history, err := s.Messenger.History(s.NotificationsChannelID, s.lookback())
	if err != nil {
		return fmt.Errorf("youtube history: %w", err)
	}
	notified, err := s.Store.Notified()
	if err != nil {
		return err
	}

	var errs []error
	announced := map[string]string{}
	for _, channelID := range tracking.YouTube {
		video, err := s.Videos.LatestVideo(ctx, channelID)
		if err != nil {
			errs = append(errs, fmt.Errorf("latest video for %s: %w", channelID, err))
			continue
		}
		if video == nil {
			continue
		}
		url := "https://youtu.be/" + video.ID
		d := Decide(historyHas(history, url), notified.YouTube[channelID], video.ID)
		if d.Send {
			if err := s.Messenger.Send(s.NotificationsChannelID, YouTubePrefix+url+"\n"+clipRunes(video.Title, titleLimit)); err != nil {
				errs = append(errs, fmt.Errorf("send for %s: %w", channelID, err))
				continue
			}
			telemetry.CountNotification("youtube")
			slog.Info("notification sent", slog.String("source", "youtube"), slog.String("channel_id", channelID), slog.String("video_id", video.ID))
		}
		if d.Persist {
			announced[channelID] = video.ID
		}
	}

	if len(announced) > 0 {
		if err := s.Store.UpdateNotified(func(n *state.Notified) error {
			for cid, vid := range announced {
				n.YouTube[cid] = vid
			}
			return nil
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

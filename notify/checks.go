package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/onnwee/genesis-relay/forum"
	"github.com/onnwee/genesis-relay/state"
	"github.com/onnwee/genesis-relay/telemetry"
)

// CheckTwitch is the manual variant of the twitch detector for one login. It uses the
// same decision logic and state mutation as the poller, but reports the outcome to
// the caller instead of only logging.
func (s *Service) CheckTwitch(ctx context.Context, login string) Result {
	norm := strings.ToLower(strings.TrimSpace(login))
	streams, err := s.Streams.GetStreams(ctx, []string{norm})
	if err != nil {
		return fail("%s: stream lookup failed: %v", norm, err)
	}
	if len(streams) == 0 {
		return ok("%s: offline or not found.", norm)
	}
	stream := streams[0]

	missing, err := s.checkSendable(s.NotificationsChannelID)
	if err != nil {
		return fail("%v", err)
	}
	if len(missing) > 0 {
		return fail("missing permissions in notifications channel: %s", strings.Join(missing, ", "))
	}

	notified, err := s.Store.Notified()
	if err != nil {
		return fail("loading state: %v", err)
	}
	if notified.Twitch[norm] == stream.ID {
		return ok("%s: already announced for the current broadcast (%s).", norm, stream.ID)
	}

	url := "https://twitch.tv/" + norm
	if err := s.Messenger.Send(s.NotificationsChannelID, TwitchPrefix+url+"\n"+clipRunes(stream.Title, titleLimit)); err != nil {
		return fail("%s: failed to send notification: %v", norm, err)
	}
	telemetry.CountNotification("twitch")
	if err := s.Store.UpdateNotified(func(n *state.Notified) error {
		n.Twitch[norm] = stream.ID
		return nil
	}); err != nil {
		return fail("%s: notification sent but state save failed: %v", norm, err)
	}
	return ok("%s: live, notification sent.", norm)
}

// CheckYouTube is the manual variant of the youtube detector for one channel input.
func (s *Service) CheckYouTube(ctx context.Context, input string) Result {
	cid, err := s.Videos.ResolveChannelID(ctx, input)
	if err != nil || cid == "" {
		return fail("could not resolve channel id; use an @handle or a link like https://www.youtube.com/@handle")
	}
	video, err := s.Videos.LatestVideo(ctx, cid)
	if err != nil {
		return fail("%s: video lookup failed: %v", cid, err)
	}
	if video == nil {
		return ok("%s: no videos found.", cid)
	}

	missing, err := s.checkSendable(s.NotificationsChannelID)
	if err != nil {
		return fail("%v", err)
	}
	if len(missing) > 0 {
		return fail("missing permissions in notifications channel: %s", strings.Join(missing, ", "))
	}

	notified, err := s.Store.Notified()
	if err != nil {
		return fail("loading state: %v", err)
	}
	if notified.YouTube[cid] == video.ID {
		return ok("%s: already announced this video (%s).", cid, video.ID)
	}

	url := "https://youtu.be/" + video.ID
	if err := s.Messenger.Send(s.NotificationsChannelID, YouTubePrefix+url+"\n"+clipRunes(video.Title, titleLimit)); err != nil {
		return fail("%s: failed to send notification: %v", cid, err)
	}
	telemetry.CountNotification("youtube")
	if err := s.Store.UpdateNotified(func(n *state.Notified) error {
		n.YouTube[cid] = video.ID
		return nil
	}); err != nil {
		return fail("%s: notification sent but state save failed: %v", cid, err)
	}
	return ok("%s: new video found, notification sent.", cid)
}

// CheckForum fetches the latest forum post and reports it without sending a
// notification or touching state.
func (s *Service) CheckForum(ctx context.Context) Result {
	post, err := s.Forum.LatestPost(ctx)
	if err != nil {
		return fail("could not fetch the forum post: %v", err)
	}
	text := forum.TruncateForMessage(post.Text, "Latest forum post:\n", post.URL)
	return ok("Latest forum post:\n%s\n\n%s", post.URL, text)
}

// CheckOrders fetches the latest order post and reports it.
func (s *Service) CheckOrders(ctx context.Context) Result {
	if s.Orders == nil || s.OrdersChannelID == "" {
		return fail("orders thread is not configured")
	}
	post, err := s.Orders.LatestPost(ctx)
	if err != nil {
		return fail("could not fetch the orders post: %v", err)
	}
	text := forum.TruncateForMessage(post.Text, "Latest order:\n", post.URL)
	return ok("Latest order:\n%s\n\n%s", post.URL, text)
}

// DiagnoseForum reports the forum watcher's full detection picture: current id,
// persisted id, whether the destination already holds the post, and permissions.
func (s *Service) DiagnoseForum(ctx context.Context) Result {
	return s.diagnoseThread(ctx, s.Forum, s.ForumChannelID, "forum",
		func(n *state.Notified) *string { return n.Forum.LastPostID })
}

// DiagnoseOrders reports the orders watcher's detection picture.
func (s *Service) DiagnoseOrders(ctx context.Context) Result {
	if s.Orders == nil || s.OrdersChannelID == "" {
		return fail("orders thread is not configured")
	}
	return s.diagnoseThread(ctx, s.Orders, s.OrdersChannelID, "orders",
		func(n *state.Notified) *string { return n.Orders.LastOrderID })
}

func (s *Service) diagnoseThread(ctx context.Context, src ThreadSource, channelID, kind string,
	lastID func(*state.Notified) *string) Result {
	missing, err := s.checkSendable(channelID)
	if err != nil {
		return fail("%s channel not reachable: %v", kind, err)
	}
	permStatus := "ok"
	if len(missing) > 0 {
		permStatus = "missing: " + strings.Join(missing, ", ")
	}

	post, err := src.LatestPost(ctx)
	if err != nil {
		return fail("could not fetch %s data: %v (permissions: %s)", kind, err, permStatus)
	}

	notified, err := s.Store.Notified()
	if err != nil {
		return fail("loading state: %v", err)
	}
	last := "unknown"
	if p := lastID(&notified); p != nil {
		last = *p
	}

	history, err := s.Messenger.History(channelID, s.lookback())
	posted := "unknown"
	if err == nil {
		posted = fmt.Sprintf("%t", historyHas(history, post.URL))
	}

	preview := clipRunes(post.Text, 100)
	return ok("current id: %s\nlast known id: %s\nalready posted: %s\npermissions: %s\nurl: %s\ntext: %s...",
		post.ID, last, posted, permStatus, post.URL, preview)
}

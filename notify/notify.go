// Package notify implements the relay's core: change detection and notification
// deduplication. Pollers fetch the latest item per tracked key from a source adapter,
// consult persisted state and (for sources with per-item deep links) recent channel
// history, and send a message exactly when the item is new. The persisted id always
// converges to the latest seen identity, so restarts and externally pre-posted
// messages never cause a duplicate announcement.
package notify

import (
	"fmt"
	"strings"
)

// Item is a source adapter's normalized output: the newest item found for one
// tracked key.
type Item struct {
	// Key is the tracked identity this item belongs to (login, channel id, thread).
	Key string
	// ID is the stable identity of the item itself (post id, stream session id,
	// video id). Comparable for equality across polls.
	ID string
	// URL is the canonical deep link to the item.
	URL string
	// Text is the human-readable excerpt or title.
	Text string
}

// Decision is the outcome of one detection step.
type Decision struct {
	Send    bool
	Persist bool
}

// Decide applies the detection table. inHistory reports whether the destination
// already holds a bot message linking the item; lastID is the persisted
// last-notified identity ("" when absent); itemID is the adapter's current identity.
//
//	history has url | id unchanged -> nothing
//	history has url | id changed   -> persist only (resync after state loss)
//	no history      | id unchanged -> nothing (already accounted for)
//	no history      | id changed   -> send and persist
func Decide(inHistory bool, lastID, itemID string) Decision {
	changed := lastID != itemID
	if inHistory {
		return Decision{Persist: changed}
	}
	return Decision{Send: changed, Persist: changed}
}

// HistoryMessage is one destination-channel message, reduced to what detection needs.
type HistoryMessage struct {
	Content string
	FromBot bool
}

// Perms are the capability flags the relay cares about in a destination channel.
type Perms struct {
	View  bool
	Send  bool
	Embed bool
}

// Missing lists the names of absent capabilities, empty when all are present.
func (p Perms) Missing() []string {
	var out []string
	if !p.View {
		out = append(out, "View Channel")
	}
	if !p.Send {
		out = append(out, "Send Messages")
	}
	if !p.Embed {
		out = append(out, "Embed Links")
	}
	return out
}

// Messenger is the destination-channel boundary: bounded history lookup,
// message send, permission introspection.
type Messenger interface {
	History(channelID string, limit int) ([]HistoryMessage, error)
	Send(channelID, content string) error
	Permissions(channelID string) (Perms, error)
}

// Result is what command-style entry points return for user display: failures are
// converted here instead of propagating past the boundary.
type Result struct {
	OK      bool
	Message string
}

func ok(format string, args ...any) Result {
	return Result{OK: true, Message: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) Result {
	return Result{OK: false, Message: fmt.Sprintf(format, args...)}
}

// historyHas reports whether any bot-authored message in msgs links the URL.
func historyHas(msgs []HistoryMessage, url string) bool {
	for _, m := range msgs {
		if m.FromBot && strings.Contains(m.Content, url) {
			return true
		}
	}
	return false
}

// clipRunes bounds s to at most n runes.
func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

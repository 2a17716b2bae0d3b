package notify

import (
	"reflect"
	"testing"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		name      string
		inHistory bool
		lastID    string
		itemID    string
		want      Decision
	}{
		{"new item, clean history", false, "1", "2", Decision{Send: true, Persist: true}},
		{"new item, no prior state", false, "", "2", Decision{Send: true, Persist: true}},
		{"unchanged item", false, "2", "2", Decision{}},
		{"already in history, id unchanged", true, "2", "2", Decision{}},
		{"already in history, state behind", true, "1", "2", Decision{Send: false, Persist: true}},
		{"already in history, state lost", true, "", "2", Decision{Send: false, Persist: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Decide(tc.inHistory, tc.lastID, tc.itemID)
			if got != tc.want {
				t.Errorf("Decide(%v, %q, %q) = %+v, want %+v", tc.inHistory, tc.lastID, tc.itemID, got, tc.want)
			}
		})
	}
}

func TestHistoryHas(t *testing.T) {
	msgs := []HistoryMessage{
		{Content: "chatter says https://example.com/threads/x.1#post-5", FromBot: false},
		{Content: "New forum post:\nhttps://example.com/threads/x.1#post-7\n\nbody", FromBot: true},
	}
	if !historyHas(msgs, "https://example.com/threads/x.1#post-7") {
		t.Error("expected hit for bot-authored message")
	}
	// Non-bot messages must not count as prior announcements.
	if historyHas(msgs, "https://example.com/threads/x.1#post-5") {
		t.Error("unexpected hit for user-authored message")
	}
	if historyHas(msgs, "https://example.com/threads/x.1#post-9") {
		t.Error("unexpected hit for absent url")
	}
}

func TestPermsMissing(t *testing.T) {
	if got := (Perms{View: true, Send: true, Embed: true}).Missing(); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	got := (Perms{View: true}).Missing()
	want := []string{"Send Messages", "Embed Links"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Missing() = %v, want %v", got, want)
	}
}

func TestClipRunes(t *testing.T) {
	if got := clipRunes("hello", 10); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := clipRunes("приветмир", 6); got != "привет" {
		t.Errorf("got %q", got)
	}
}

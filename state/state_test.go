package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestOpenCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	st, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", st.Dir(), dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("state dir not created: %v", err)
	}
}

func TestTrackingFirstRunSeedsDefaults(t *testing.T) {
	st, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tr, err := st.Tracking()
	if err != nil {
		t.Fatalf("Tracking: %v", err)
	}
	if len(tr.Twitch) != 0 || len(tr.YouTube) != 0 {
		t.Errorf("expected empty tracking, got %+v", tr)
	}
	// First read must materialize the file on disk.
	if _, err := os.Stat(filepath.Join(st.Dir(), "channels.json")); err != nil {
		t.Errorf("channels.json not created on first read: %v", err)
	}
}

func TestNotifiedFirstRunDefaults(t *testing.T) {
	st, _ := Open(t.TempDir())
	n, err := st.Notified()
	if err != nil {
		t.Fatalf("Notified: %v", err)
	}
	if n.Twitch == nil || n.YouTube == nil {
		t.Fatal("expected non-nil maps")
	}
	if n.Forum.LastPostID != nil || n.Orders.LastOrderID != nil {
		t.Errorf("expected nil last ids, got forum=%v orders=%v", n.Forum.LastPostID, n.Orders.LastOrderID)
	}
	// The seeded file carries explicit nulls, not missing keys.
	data, err := os.ReadFile(filepath.Join(st.Dir(), "notified.json"))
	if err != nil {
		t.Fatalf("read notified.json: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("parse notified.json: %v", err)
	}
	for _, key := range []string{"twitch", "youtube", "forum", "orders"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("notified.json missing top-level key %q", key)
		}
	}
}

func TestUpdateNotifiedKindIsolation(t *testing.T) {
	st, _ := Open(t.TempDir())

	post := "post-42"
	if err := st.UpdateNotified(func(n *Notified) error {
		n.Forum.LastPostID = &post
		return nil
	}); err != nil {
		t.Fatalf("UpdateNotified forum: %v", err)
	}
	if err := st.UpdateNotified(func(n *Notified) error {
		n.Twitch["somestreamer"] = "777"
		return nil
	}); err != nil {
		t.Fatalf("UpdateNotified twitch: %v", err)
	}

	n, err := st.Notified()
	if err != nil {
		t.Fatalf("Notified: %v", err)
	}
	if n.Forum.LastPostID == nil || *n.Forum.LastPostID != "post-42" {
		t.Errorf("forum substate perturbed by twitch update: %+v", n.Forum)
	}
	if n.Twitch["somestreamer"] != "777" {
		t.Errorf("twitch substate lost: %+v", n.Twitch)
	}
	if n.Orders.LastOrderID != nil {
		t.Errorf("orders substate perturbed: %+v", n.Orders)
	}
}

func TestTrackingNormalization(t *testing.T) {
	st, _ := Open(t.TempDir())
	err := st.SaveTracking(Tracking{
		Twitch:  []string{"StreamerOne", "streamerone", "other"},
		YouTube: []string{"UCabc", "UCabc", "UCdef"},
	})
	if err != nil {
		t.Fatalf("SaveTracking: %v", err)
	}
	tr, err := st.Tracking()
	if err != nil {
		t.Fatalf("Tracking: %v", err)
	}
	if want := []string{"streamerone", "other"}; !reflect.DeepEqual(tr.Twitch, want) {
		t.Errorf("Twitch = %v, want %v", tr.Twitch, want)
	}
	// YouTube channel ids are case-sensitive and must not be lowercased.
	if want := []string{"UCabc", "UCdef"}; !reflect.DeepEqual(tr.YouTube, want) {
		t.Errorf("YouTube = %v, want %v", tr.YouTube, want)
	}
}

func TestCorruptFileIsHardError(t *testing.T) {
	dir := t.TempDir()
	st, _ := Open(dir)
	if err := os.WriteFile(filepath.Join(dir, "channels.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Tracking(); err == nil {
		t.Fatal("expected error reading corrupt channels.json, got nil")
	}
}

func TestRoleMessageRoundTrip(t *testing.T) {
	st, _ := Open(t.TempDir())

	m, err := st.RoleMessage()
	if err != nil {
		t.Fatalf("RoleMessage: %v", err)
	}
	if m.MessageID != nil {
		t.Errorf("expected nil message id on first run, got %v", *m.MessageID)
	}

	id := "123456789"
	if err := st.SaveRoleMessage(RoleMessage{MessageID: &id}); err != nil {
		t.Fatalf("SaveRoleMessage: %v", err)
	}
	m, err = st.RoleMessage()
	if err != nil {
		t.Fatalf("RoleMessage reload: %v", err)
	}
	if m.MessageID == nil || *m.MessageID != id {
		t.Errorf("reloaded message id = %v, want %q", m.MessageID, id)
	}
}

func TestRoleBindingsPreserveOrder(t *testing.T) {
	st, _ := Open(t.TempDir())
	in := RoleBindings{
		{Emoji: "🏛️", Role: "GOS"},
		{Emoji: "🔫", Role: "Crime"},
		{Emoji: "📰", Role: "Press"},
	}
	if err := st.SaveRoleBindings(in); err != nil {
		t.Fatalf("SaveRoleBindings: %v", err)
	}
	out, err := st.RoleBindings()
	if err != nil {
		t.Fatalf("RoleBindings: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("bindings round-trip = %v, want %v", out, in)
	}
}

func TestRoleBindingsJSONIsObject(t *testing.T) {
	in := RoleBindings{
		{Emoji: "🅰️", Role: "Alpha"},
		{Emoji: "🅱️", Role: "Beta"},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// The on-disk shape is a plain emoji->role object.
	var asMap map[string]string
	if err := json.Unmarshal(data, &asMap); err != nil {
		t.Fatalf("bindings did not marshal as an object: %v (%s)", err, data)
	}
	if asMap["🅰️"] != "Alpha" || asMap["🅱️"] != "Beta" {
		t.Errorf("unexpected object content: %v", asMap)
	}

	var out RoleBindings
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round-trip = %v, want %v", out, in)
	}
}

func TestRoleBindingsLookup(t *testing.T) {
	b := RoleBindings{{Emoji: "🏛️", Role: "GOS"}}
	if role, ok := b.Role("🏛️"); !ok || role != "GOS" {
		t.Errorf("Role(🏛️) = %q, %v", role, ok)
	}
	if _, ok := b.Role("❓"); ok {
		t.Error("unexpected hit for unbound emoji")
	}
}

func TestSaveIsAtomicOnDisk(t *testing.T) {
	dir := t.TempDir()
	st, _ := Open(dir)
	if err := st.SaveTracking(Tracking{Twitch: []string{"a"}}); err != nil {
		t.Fatalf("SaveTracking: %v", err)
	}
	// No temp files may survive a successful save.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "channels.json" {
			t.Errorf("unexpected leftover file %q", e.Name())
		}
	}
}

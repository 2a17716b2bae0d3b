// Package state persists the relay's small JSON documents on disk: tracked sources,
// per-source last-notified identities, the reaction-role legend, and the standing
// role-menu message id. Files are pretty-printed UTF-8 JSON, created with defaults on
// first read, and every save goes through a temp-file rename so a crash mid-write never
// leaves a torn document.
//
// One Store instance owns all four files; a single mutex serializes every
// read-modify-write round-trip so concurrent pollers cannot race on a full-file
// overwrite. Substates for different source kinds are independent top-level keys in
// notified.json, so a twitch update can never perturb youtube/forum/orders entries.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	trackingFile        = "channels.json"
	notifiedFile        = "notified.json"
	reactionRolesFile   = "reaction_roles.json"
	reactionMessageFile = "reaction_message.json"
)

// Tracking holds the sets of watched Twitch logins and YouTube channel ids.
// Both slices are deduplicated and case-normalized (twitch) on load; insertion
// order is preserved for display.
type Tracking struct {
	Twitch  []string `json:"twitch"`
	YouTube []string `json:"youtube"`
}

// ThreadNotified is the forum substate of notified.json.
type ThreadNotified struct {
	LastPostID *string `json:"last_post_id"`
}

// OrdersNotified is the orders substate of notified.json.
type OrdersNotified struct {
	LastOrderID *string `json:"last_order_id"`
}

// Notified records the last item identity announced per tracked key. Each source
// kind owns its own top-level key.
type Notified struct {
	Twitch  map[string]string `json:"twitch"`
	YouTube map[string]string `json:"youtube"`
	Forum   ThreadNotified    `json:"forum"`
	Orders  OrdersNotified    `json:"orders"`
}

// RoleMessage persists the id of the single standing reaction-role message.
type RoleMessage struct {
	MessageID *string `json:"message_id"`
}

// Store loads and saves the relay's persisted documents under a single directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open returns a Store rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory the store persists into.
func (s *Store) Dir() string { return s.dir }

// Tracking loads channels.json, seeding an empty document on first run.
// Twitch logins are lowercased and both lists deduplicated, keeping first occurrence.
func (s *Store) Tracking() (Tracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t Tracking
	if err := s.load(trackingFile, &t, Tracking{Twitch: []string{}, YouTube: []string{}}); err != nil {
		return Tracking{}, err
	}
	t.normalize()
	return t, nil
}

// SaveTracking overwrites channels.json.
func (s *Store) SaveTracking(t Tracking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.normalize()
	return s.save(trackingFile, t)
}

// UpdateTracking runs fn on the current tracking document and persists the result,
// all under the store lock.
func (s *Store) UpdateTracking(fn func(*Tracking) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t Tracking
	if err := s.load(trackingFile, &t, Tracking{Twitch: []string{}, YouTube: []string{}}); err != nil {
		return err
	}
	t.normalize()
	if err := fn(&t); err != nil {
		return err
	}
	t.normalize()
	return s.save(trackingFile, t)
}

// Notified loads notified.json, default-filling absent substates.
func (s *Store) Notified() (Notified, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n Notified
	if err := s.load(notifiedFile, &n, defaultNotified()); err != nil {
		return Notified{}, err
	}
	n.fill()
	return n, nil
}

// UpdateNotified runs fn on the current notified document and persists the result,
// all under the store lock. This is the only mutation path the pollers use.
func (s *Store) UpdateNotified(fn func(*Notified) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n Notified
	if err := s.load(notifiedFile, &n, defaultNotified()); err != nil {
		return err
	}
	n.fill()
	if err := fn(&n); err != nil {
		return err
	}
	return s.save(notifiedFile, n)
}

// RoleBindings loads reaction_roles.json, seeding an empty legend on first run.
func (s *Store) RoleBindings() (RoleBindings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b RoleBindings
	if err := s.load(reactionRolesFile, &b, RoleBindings{}); err != nil {
		return nil, err
	}
	return b, nil
}

// SaveRoleBindings overwrites reaction_roles.json.
func (s *Store) SaveRoleBindings(b RoleBindings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(reactionRolesFile, b)
}

// RoleMessage loads reaction_message.json.
func (s *Store) RoleMessage() (RoleMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var m RoleMessage
	if err := s.load(reactionMessageFile, &m, RoleMessage{}); err != nil {
		return RoleMessage{}, err
	}
	return m, nil
}

// SaveRoleMessage overwrites reaction_message.json.
func (s *Store) SaveRoleMessage(m RoleMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(reactionMessageFile, m)
}

func defaultNotified() Notified {
	return Notified{Twitch: map[string]string{}, YouTube: map[string]string{}}
}

func (n *Notified) fill() {
	if n.Twitch == nil {
		n.Twitch = map[string]string{}
	}
	if n.YouTube == nil {
		n.YouTube = map[string]string{}
	}
}

func (t *Tracking) normalize() {
	t.Twitch = dedupeLower(t.Twitch, true)
	t.YouTube = dedupeLower(t.YouTube, false)
}

func dedupeLower(in []string, lower bool) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if lower {
			v = strings.ToLower(v)
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// load reads name into v, writing def to disk and returning it when the file is absent.
// A present-but-unparseable file is a hard error; nothing here guesses at corrupt state.
func (s *Store) load(name string, v any, def any) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := s.save(name, def); err != nil {
			return err
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
	} else if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// save writes v as pretty-printed JSON via a temp file and rename.
func (s *Store) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	data = append(data, '\n')
	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file for %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// Package roomview holds the per-session projection of backend rooms onto
// the IRC channel/user model: the Session, Room, and ShortUser types a
// bridge session keeps in memory for its lifetime.
//
// Adapted from the teacher's internal/v1/types package conventions (plain
// structs with small getter surfaces, no behavior baked into the backend
// client itself) and grounded on proxy.rs's Session/Room handling in
// original_source, generalized from a single in-process struct into a
// package with its own tests.
package roomview

import (
	"strings"
	"time"

	"k8s.io/utils/set"
)

// Type tags a Room by its backend room_type character.
type Type string

const (
	TypeChat    Type = "c"
	TypePrivate Type = "p"
	TypeDirect  Type = "d"
	TypeOther   Type = "o"
)

// Room is the in-memory projection of one backend room.
type Room struct {
	ID       string
	Name     string // present for Chat and Private
	Topic    string
	HasTopic bool
	Type     Type
	LastSeen time.Time
}

// ChannelName returns the IRC channel name for a Chat or Private room.
// Private rooms are projected onto '#' channels, not '&': see DESIGN.md's
// open-question resolution.
func (r *Room) ChannelName() string {
	return "#" + r.Name
}

// ShortUser is the minimal user shape needed to build a NAMES reply.
type ShortUser struct {
	ID       string
	Username string
}

// Session is a per-connection projection of every backend room the user is
// currently in, indexed both by room id (authoritative) and by channel
// name (derived). It is not safe for concurrent use — the bridge loop that
// owns a session is its only caller, by construction.
type Session struct {
	byID   map[string]*Room
	byName map[string]*Room
}

// New returns an empty Session.
func New() *Session {
	return &Session{
		byID:   make(map[string]*Room),
		byName: make(map[string]*Room),
	}
}

// Add inserts or replaces a room, keeping both lookups in sync.
func (s *Session) Add(r *Room) {
	if old, ok := s.byID[r.ID]; ok && old.Name != "" {
		delete(s.byName, strings.ToLower(old.Name))
	}
	s.byID[r.ID] = r
	if r.Name != "" {
		s.byName[strings.ToLower(r.Name)] = r
	}
}

// Remove drops a room from both lookups.
func (s *Session) Remove(id string) {
	r, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	if r.Name != "" {
		delete(s.byName, strings.ToLower(r.Name))
	}
}

// ByID looks up a room by its backend id.
func (s *Session) ByID(id string) (*Room, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// ByName looks up a room by its channel name, with or without the leading
// '#'. Lookups are case-insensitive, matching IRC channel-name semantics.
func (s *Session) ByName(name string) (*Room, bool) {
	r, ok := s.byName[strings.ToLower(strings.TrimPrefix(name, "#"))]
	return r, ok
}

// Rooms returns every room currently known, in no particular order.
func (s *Session) Rooms() []*Room {
	out := make([]*Room, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r)
	}
	return out
}

// BuildFromRaw projects a backend room listing into a fresh Session,
// dropping duplicate ids. A bulk RPC listing can legitimately repeat a
// room (e.g. once per subscription that surfaced it); the dedup set
// ensures each room is added exactly once regardless of how many times it
// appears in raw.
func BuildFromRaw(raw []RawRoom) *Session {
	sess := New()
	seen := set.New[string]()
	for _, r := range raw {
		if seen.Has(r.ID) {
			continue
		}
		seen.Insert(r.ID)
		sess.Add(r.toRoom())
	}
	return sess
}

// RawRoom is the shape a backend bulk room listing decodes into, before
// being projected into a Room. Kept separate from Room so wire decoding
// never leaks backend field names into the bridge's own model.
type RawRoom struct {
	ID       string
	Name     string
	Topic    string
	HasTopic bool
	TypeTag  string
	LastSeen time.Time
}

func (r RawRoom) toRoom() *Room {
	t := Type(r.TypeTag)
	switch t {
	case TypeChat, TypePrivate, TypeDirect:
	default:
		t = TypeOther
	}
	return &Room{
		ID:       r.ID,
		Name:     r.Name,
		Topic:    r.Topic,
		HasTopic: r.HasTopic,
		Type:     t,
		LastSeen: r.LastSeen,
	}
}

// IsJoinable reports whether the room variant is ever emitted as an IRC
// JOIN during initial session projection.
func (r *Room) IsJoinable() bool {
	return r.Type == TypeChat || r.Type == TypePrivate
}

// NameModeChar returns the RPL_NAMREPLY mode character for a joinable
// room: '=' for public Chat, '*' for Private.
func (r *Room) NameModeChar() string {
	if r.Type == TypePrivate {
		return "*"
	}
	return "="
}

// Package modal is the single source of truth for which overlay (modal or
// sidebar) is showing and what it was opened with. State changes only
// through typed OPEN_*/CLOSE_* actions applied by a pure reducer.
package modal

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind identifies one overlay.
type Kind string

const (
	Search              Kind = "search"
	CreateJob           Kind = "create-job"
	Chat                Kind = "chat"
	ResourceInteraction Kind = "resource-interaction"
	RegisterResource    Kind = "register-resource"
	MyJobsSidebar       Kind = "my-jobs-sidebar"
)

// Kinds lists every overlay in display order.
var Kinds = []Kind{Search, CreateJob, Chat, ResourceInteraction, RegisterResource, MyJobsSidebar}

// ParseKind resolves a kind from its name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown modal %q", s)
}

// ActionType names a state transition, e.g. OPEN_CREATE_JOB.
type ActionType string

// OpenAction returns the OPEN_* action type for k.
func OpenAction(k Kind) ActionType { return ActionType("OPEN_" + actionSuffix(k)) }

// CloseAction returns the CLOSE_* action type for k.
func CloseAction(k Kind) ActionType { return ActionType("CLOSE_" + actionSuffix(k)) }

func actionSuffix(k Kind) string {
	return strings.ToUpper(strings.ReplaceAll(string(k), "-", "_"))
}

// Action is a transition request.
type Action struct {
	Type    ActionType
	Kind    Kind
	Payload *Payload
}

// Open builds an OPEN_* action.
func Open(k Kind, p *Payload) Action {
	return Action{Type: OpenAction(k), Kind: k, Payload: p}
}

// Close builds a CLOSE_* action.
func Close(k Kind) Action {
	return Action{Type: CloseAction(k), Kind: k}
}

// Payload is what an overlay was opened with. Data holds the kind-specific
// value (SearchPayload, CreateJobPayload, ...). OnSuccess, when set, runs
// once after the overlay closes on a successful operation.
type Payload struct {
	Data      any    `json:"data,omitempty"`
	OnSuccess func() `json:"-"`
}

// SearchPayload carries the initial search query and filters.
type SearchPayload struct {
	Query   string            `json:"query,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

// CreateJobPayload seeds the job composer. JobID is set when editing.
type CreateJobPayload struct {
	JobID         string   `json:"jobId,omitempty"`
	ResourceSlugs []string `json:"resourceSlugs,omitempty"`
}

// ChatPayload targets the job the chat runs against.
type ChatPayload struct {
	JobID string `json:"jobId"`
}

// ResourcePayload references the resource being interacted with.
type ResourcePayload struct {
	ResourceID string `json:"resourceId,omitempty"`
	Slug       string `json:"slug,omitempty"`
}

// DecodeData decodes a JSON payload body into the data type expected by k.
func DecodeData(k Kind, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v any
	switch k {
	case Search:
		v = &SearchPayload{}
	case CreateJob:
		v = &CreateJobPayload{}
	case Chat:
		v = &ChatPayload{}
	case ResourceInteraction:
		v = &ResourcePayload{}
	default:
		var m map[string]any
		v = &m
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", k, err)
	}
	return v, nil
}

// Entry is the state of one overlay.
type Entry struct {
	Open    bool     `json:"open"`
	Payload *Payload `json:"payload,omitempty"`
}

// State maps every overlay to its entry. Missing kinds are closed.
type State map[Kind]Entry

// Initial returns the all-closed state.
func Initial() State {
	s := make(State, len(Kinds))
	for _, k := range Kinds {
		s[k] = Entry{}
	}
	return s
}

// IsOpen reports whether k is open.
func (s State) IsOpen(k Kind) bool { return s[k].Open }

// Reduce applies a to s and returns the next state. It never mutates s.
// Re-opening replaces the payload. Closing a closed overlay returns s as is.
func Reduce(s State, a Action) State {
	switch a.Type {
	case OpenAction(a.Kind):
		next := s.clone()
		next[a.Kind] = Entry{Open: true, Payload: a.Payload}
		return next
	case CloseAction(a.Kind):
		if !s[a.Kind].Open {
			return s
		}
		next := s.clone()
		next[a.Kind] = Entry{}
		return next
	}
	return s
}

func (s State) clone() State {
	next := make(State, len(s))
	for k, v := range s {
		next[k] = v
	}
	return next
}

// Listener observes state changes.
type Listener func(State)

// Store holds the overlay state for one application root.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
}

// NewStore creates a store with every overlay closed.
func NewStore() *Store {
	return &Store{state: Initial(), listeners: make(map[int]Listener)}
}

// State returns the current state. The map is a snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Dispatch applies a and notifies listeners when the state changed. It
// returns the entry the action replaced.
func (s *Store) Dispatch(a Action) (prev Entry) {
	s.mu.Lock()
	prev = s.state[a.Kind]
	next := Reduce(s.state, a)
	changed := !sameState(s.state, next)
	s.state = next
	var listeners []Listener
	if changed {
		listeners = s.snapshotListeners()
	}
	snap := next.clone()
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return prev
}

// Open shows k with payload p, replacing any current payload.
func (s *Store) Open(k Kind, p *Payload) {
	s.Dispatch(Open(k, p))
}

// Close hides k and drops its payload. No-op if k is closed.
func (s *Store) Close(k Kind) {
	s.Dispatch(Close(k))
}

// Resolve closes k after its operation finished. On success (err == nil)
// the OnSuccess callback captured at open time runs exactly once, after the
// close. A second Resolve finds no payload and runs nothing.
func (s *Store) Resolve(k Kind, err error) {
	prev := s.Dispatch(Close(k))
	if err != nil || !prev.Open || prev.Payload == nil || prev.Payload.OnSuccess == nil {
		return
	}
	prev.Payload.OnSuccess()
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Reset closes everything without running callbacks.
func (s *Store) Reset() {
	s.mu.Lock()
	s.state = Initial()
	listeners := s.snapshotListeners()
	snap := s.state.clone()
	s.mu.Unlock()
	for _, l := range listeners {
		l(snap)
	}
}

func (s *Store) snapshotListeners() []Listener {
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.listeners[id])
	}
	return out
}

// sameState compares by identity of entries; payload pointers are compared,
// not their contents.
func sameState(a, b State) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || v.Open != w.Open || v.Payload != w.Payload {
			return false
		}
	}
	return true
}

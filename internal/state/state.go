// Package state holds the cross-component UI selection and call status in
// one explicit container with change notification. The container is passed
// to whoever needs it rather than accessed as an ambient singleton.
package state

import "sync"

// State is a value snapshot of the shared application state.
type State struct {
	CurrentRoomID    string
	CurrentChannelID string
	UserID           string
	UserName         string
	VoiceConnected   bool
	Muted            bool
	ScreenSharing    bool
}

// Store owns one State and notifies subscribers after every write.
// Subscribers run synchronously on the writing goroutine.
type Store struct {
	mu     sync.Mutex
	s      State
	nextID int
	subs   map[int]func(State)
}

// NewStore creates a store with the given initial state.
func NewStore(initial State) *Store {
	return &Store{s: initial, subs: make(map[int]func(State))}
}

// Get returns the current state snapshot.
func (st *Store) Get() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}

// Subscribe registers fn to receive every subsequent state snapshot and
// returns an unsubscribe function.
func (st *Store) Subscribe(fn func(State)) func() {
	st.mu.Lock()
	id := st.nextID
	st.nextID++
	st.subs[id] = fn
	st.mu.Unlock()

	return func() {
		st.mu.Lock()
		delete(st.subs, id)
		st.mu.Unlock()
	}
}

// Update applies fn to the state and notifies subscribers.
func (st *Store) Update(fn func(*State)) {
	st.mu.Lock()
	fn(&st.s)
	snapshot := st.s
	var fns []func(State)
	for _, sub := range st.subs {
		fns = append(fns, sub)
	}
	st.mu.Unlock()

	for _, f := range fns {
		f(snapshot)
	}
}

// Typed writers for the common transitions.

func (st *Store) SetCurrentRoom(id string)    { st.Update(func(s *State) { s.CurrentRoomID = id }) }
func (st *Store) SetCurrentChannel(id string) { st.Update(func(s *State) { s.CurrentChannelID = id }) }
func (st *Store) SetUser(id, name string) {
	st.Update(func(s *State) { s.UserID = id; s.UserName = name })
}
func (st *Store) SetVoiceConnected(v bool) { st.Update(func(s *State) { s.VoiceConnected = v }) }
func (st *Store) SetMuted(v bool)          { st.Update(func(s *State) { s.Muted = v }) }
func (st *Store) SetScreenSharing(v bool)  { st.Update(func(s *State) { s.ScreenSharing = v }) }

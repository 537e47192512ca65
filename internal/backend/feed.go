package backend

import "sync"

// EventType classifies a change-feed event.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is one row-level change. Row holds the affected row's model struct
// (for deletes, the row as it was before deletion).
type Event struct {
	Type  EventType
	Table string
	Row   any
}

// Filter restricts a subscription to rows whose Column equals Value.
// The zero Filter matches every row of the table.
type Filter struct {
	Column string
	Value  string
}

func (f Filter) matches(row any) bool {
	if f.Column == "" {
		return true
	}
	return rowColumn(row, f.Column) == f.Value
}

// rowColumn extracts a filterable column from a row model. Only the columns
// subscriptions actually filter on are mapped.
func rowColumn(row any, column string) string {
	switch r := row.(type) {
	case *Channel:
		if column == "room_id" {
			return r.RoomID
		}
	case *Message:
		if column == "channel_id" {
			return r.ChannelID
		}
	case *Reaction:
		if column == "message_id" {
			return r.MessageID
		}
	}
	return ""
}

type subscription struct {
	table  string
	filter Filter
	fn     func(Event)
}

// feed fans row-level change events out to subscribers in commit order.
// Handlers run synchronously on the mutating goroutine, matching the
// relay's in-order-per-sender discipline.
type feed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]subscription
}

func newFeed() *feed {
	return &feed{subs: make(map[int]subscription)}
}

// subscribe registers fn for changes on table matching filter and returns
// an unsubscribe function.
func (f *feed) subscribe(table string, filter Filter, fn func(Event)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = subscription{table: table, filter: filter, fn: fn}
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *feed) emit(ev Event) {
	f.mu.Lock()
	var fns []func(Event)
	for _, sub := range f.subs {
		if sub.table == ev.Table && sub.filter.matches(ev.Row) {
			fns = append(fns, sub.fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

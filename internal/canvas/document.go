// Package canvas keeps each participant's shared drawing document in sync
// through periodic full-snapshot broadcast over the relay.
package canvas

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Snapshot is the complete serialized state of a document at one instant.
// It is opaque to everything outside this package; applying one is total
// (replaces the receiving document) and idempotent.
type Snapshot []byte

// Document is one participant's mutable copy of the shared canvas: a set of
// records keyed by id. There is no shared memory between participants —
// convergence comes only from snapshot exchange.
type Document struct {
	mu        sync.RWMutex
	records   map[string]json.RawMessage
	listeners []func()
}

// snapshotWire is the serialized document shape.
type snapshotWire struct {
	Records map[string]json.RawMessage `json:"records"`
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{records: make(map[string]json.RawMessage)}
}

// Listen registers fn to be called after every mutation, local or remote.
// Listeners run synchronously on the mutating goroutine.
func (d *Document) Listen(fn func()) {
	d.mu.Lock()
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
}

// Put inserts or replaces one record.
func (d *Document) Put(id string, record json.RawMessage) {
	d.mu.Lock()
	d.records[id] = record
	fns := d.listeners
	d.mu.Unlock()
	notify(fns)
}

// Delete removes one record. Deleting an absent id is a no-op that still
// notifies listeners.
func (d *Document) Delete(id string) {
	d.mu.Lock()
	delete(d.records, id)
	fns := d.listeners
	d.mu.Unlock()
	notify(fns)
}

// Get returns one record by id.
func (d *Document) Get(id string) (json.RawMessage, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[id]
	return rec, ok
}

// Len returns the number of records.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Snapshot serializes the entire document.
func (d *Document) Snapshot() (Snapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, err := json.Marshal(snapshotWire{Records: d.records})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}
	return Snapshot(data), nil
}

// Restore replaces the entire document with the snapshot's state. The
// snapshot is parsed into a scratch record set first, so a malformed
// snapshot leaves the document exactly as it was.
func (d *Document) Restore(s Snapshot) error {
	var wire snapshotWire
	if err := json.Unmarshal(s, &wire); err != nil {
		return fmt.Errorf("malformed snapshot: %w", err)
	}
	if wire.Records == nil {
		wire.Records = make(map[string]json.RawMessage)
	}

	d.mu.Lock()
	d.records = wire.Records
	fns := d.listeners
	d.mu.Unlock()
	notify(fns)
	return nil
}

func notify(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

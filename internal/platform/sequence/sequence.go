// Package sequence allocates the monotonically increasing control numbers
// that identify interchanges (ISA13), functional groups (GS06), transaction
// sets (ST02) and HL7 messages (MSH-10).
package sequence

import (
	"context"
	"sync"
)

// Counter names.
const (
	Interchange = "x12.interchange"
	Group       = "x12.group"
	Transaction = "x12.transaction"
	HL7Message  = "hl7.message"
)

// Upper bounds of the wire fields each counter feeds.
const (
	MaxInterchange int64 = 999999999 // ISA13, nine digits
	MaxGroup       int64 = 999999999 // GS06
	MaxTransaction int64 = 9999      // ST02 as emitted, four digits
	MaxHL7Message  int64 = 999999999
)

// Sequencer hands out the next value of a named counter. Values start at 1.
type Sequencer interface {
	Next(ctx context.Context, name string) (int64, error)
}

// Wrap folds n into 1..max so a long-lived counter can keep feeding a
// fixed-width field.
func Wrap(n, max int64) int64 {
	if n <= 0 || max <= 0 {
		return 1
	}
	return (n-1)%max + 1
}

// Memory is a process-local Sequencer. Counters reset on restart.
type Memory struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewMemory creates an empty in-memory sequencer.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]int64)}
}

// Next increments and returns the named counter.
func (m *Memory) Next(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name]++
	return m.values[name], nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error {
	return nil
}

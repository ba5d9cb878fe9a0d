package cper

import (
	"sync/atomic"
	"time"
)

// RecordIDSource hands out record identifiers. The counter is seeded on
// first use with the wall clock in the upper 32 bits, so identifiers stay
// unique across reboots. Only the first compare-and-swap seeds; every call
// after that is a single atomic add.
type RecordIDSource struct {
	seq atomic.Uint64
	now func() time.Time
}

// NewRecordIDSource returns a source seeded from now on first use.
func NewRecordIDSource(now func() time.Time) *RecordIDSource {
	if now == nil {
		now = time.Now
	}
	return &RecordIDSource{now: now}
}

// Next returns the next identifier.
func (s *RecordIDSource) Next() uint64 {
	if s.seq.Load() == 0 {
		s.seq.CompareAndSwap(0, uint64(s.now().Unix())<<32)
	}
	return s.seq.Add(1)
}

var defaultRecordIDs = NewRecordIDSource(nil)

// NextRecordID returns the next process-wide record identifier.
func NextRecordID() uint64 {
	return defaultRecordIDs.Next()
}

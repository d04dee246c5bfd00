package trace

import "sync"

// LoaderTrace collects window records during one epoch. Safe for concurrent
// use by several producers.
type LoaderTrace struct {
	mu      sync.Mutex
	windows []WindowRecord
}

// NewLoaderTrace creates a LoaderTrace ready for recording.
func NewLoaderTrace() *LoaderTrace {
	return &LoaderTrace{windows: make([]WindowRecord, 0)}
}

// Record appends a window record.
func (lt *LoaderTrace) Record(record WindowRecord) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.windows = append(lt.windows, record)
}

// Windows returns a copy of the recorded windows in recording order.
func (lt *LoaderTrace) Windows() []WindowRecord {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return append([]WindowRecord(nil), lt.windows...)
}

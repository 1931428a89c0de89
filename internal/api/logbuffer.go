package api

import (
	"encoding/json"
	"sync"
	"time"
)

// LogEntry is one captured log line served by /api/logs.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Raw       string    `json:"raw"`
}

// LogBuffer is a thread-safe ring buffer over recent log output. It
// implements io.Writer so it can sit in a zerolog MultiLevelWriter next
// to the console writer.
type LogBuffer struct {
	entries []LogEntry
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

// NewLogBuffer creates a buffer holding the last size entries.
func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{
		entries: make([]LogEntry, size),
		size:    size,
	}
}

// Write captures one zerolog JSON line.
func (lb *LogBuffer) Write(p []byte) (int, error) {
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     "info",
		Raw:       string(p),
	}

	var line struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(p, &line); err == nil {
		if line.Level != "" {
			entry.Level = line.Level
		}
		entry.Message = line.Message
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.entries[lb.head] = entry
	lb.head = (lb.head + 1) % lb.size
	if lb.count < lb.size {
		lb.count++
	}
	return len(p), nil
}

// Entries returns all captured entries in chronological order.
func (lb *LogBuffer) Entries() []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	result := make([]LogEntry, lb.count)
	if lb.count == 0 {
		return result
	}

	start := 0
	if lb.count == lb.size {
		start = lb.head
	}
	for i := 0; i < lb.count; i++ {
		result[i] = lb.entries[(start+i)%lb.size]
	}
	return result
}

// Recent returns the most recent n entries.
func (lb *LogBuffer) Recent(n int) []LogEntry {
	entries := lb.Entries()
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

package api

import (
	"strings"
	"sync"
)

const maxLogs = 100

// LogBuffer keeps the most recent log lines for the logs endpoint. It is an io.Writer meant
// to sit next to the normal log output.
type LogBuffer struct {
	mu    sync.RWMutex
	lines []string
	max   int
}

func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = maxLogs
	}
	return &LogBuffer{max: max}
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg == "" {
		return len(p), nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range strings.Split(msg, "\n") {
		b.lines = append(b.lines, line)
	}
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = append([]string(nil), b.lines[over:]...)
	}
	return len(p), nil
}

// Lines returns the buffered lines, oldest first.
func (b *LogBuffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string{}, b.lines...)
}

package transfer

import (
	"fmt"
	"strings"
	"time"
)

type Entry struct {
	Time    time.Time `json:"time"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
}

func (e Entry) String() string {
	return fmt.Sprintf("%s [%s] %s", e.Time.Format("15:04:05.000"), e.Stage, e.Message)
}

// Trail is the append-only log of one request. Timestamps never go
// backwards.
type Trail struct {
	entries []Entry
}

func (t *Trail) Add(stage, format string, args ...any) {
	now := time.Now()
	if n := len(t.entries); n > 0 && now.Before(t.entries[n-1].Time) {
		now = t.entries[n-1].Time
	}
	t.entries = append(t.entries, Entry{Time: now, Stage: stage, Message: fmt.Sprintf(format, args...)})
}

func (t Trail) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

func (t Trail) Len() int { return len(t.entries) }

func (t Trail) Lines() []string {
	lines := make([]string, len(t.entries))
	for i, e := range t.entries {
		lines[i] = e.String()
	}
	return lines
}

func (t Trail) String() string {
	return strings.Join(t.Lines(), "\n")
}

// Contains reports whether any message contains s.
func (t Trail) Contains(s string) bool {
	for _, e := range t.entries {
		if strings.Contains(e.Message, s) {
			return true
		}
	}
	return false
}

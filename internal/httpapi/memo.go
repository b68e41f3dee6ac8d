package httpapi

import (
	"strings"
	"sync"
	"time"
)

// memoStore backs the four /api/memory/* routes spec.md §6 names. The
// teacher's own internal/memory package is a full vector-indexed
// conversation memory subsystem tied to its multi-channel bot; nothing in
// this server's scope needs that, so this is a small, self-contained
// append-only fact/status store in the same spirit as the teacher's
// internal/memory.Logger's plain recording API, not an adaptation of it.
type memoStore struct {
	mu        sync.RWMutex
	facts     []memoFact
	workLog   []workLogEntry
	workState string
}

type memoFact struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type workLogEntry struct {
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newMemoStore() *memoStore {
	return &memoStore{workState: "idle"}
}

func (m *memoStore) remember(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts = append(m.facts, memoFact{Text: text, CreatedAt: time.Now()})
}

// recall returns facts whose text contains q (case-insensitive substring
// match), most recent first. An empty q returns every fact.
func (m *memoStore) recall(q string) []memoFact {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]memoFact, 0, len(m.facts))
	for i := len(m.facts) - 1; i >= 0; i-- {
		f := m.facts[i]
		if q == "" || strings.Contains(strings.ToLower(f.Text), strings.ToLower(q)) {
			out = append(out, f)
		}
	}
	return out
}

func (m *memoStore) logWork(status, detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status != "" {
		m.workState = status
	}
	m.workLog = append(m.workLog, workLogEntry{Status: status, Detail: detail, CreatedAt: time.Now()})
}

func (m *memoStore) status() (state string, log []workLogEntry) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]workLogEntry, len(m.workLog))
	copy(out, m.workLog)
	return m.workState, out
}

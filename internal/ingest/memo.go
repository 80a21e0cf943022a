package ingest

import (
	"strings"
	"sync"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

type memoEntry struct {
	version store.Version
	result  Result
}

// Memo remembers completed ingestions by their inputs. An entry only
// counts while the store has not been written since it was recorded, by
// this process or another.
type Memo struct {
	mu      sync.Mutex
	entries map[string]memoEntry
}

// NewMemo returns an empty Memo.
func NewMemo() *Memo {
	return &Memo{entries: make(map[string]memoEntry)}
}

func memoKey(storePath string, sources []source) string {
	var b strings.Builder
	b.WriteString(storePath)
	for _, src := range sources {
		b.WriteString("\x00")
		b.WriteString(src.path)
		b.WriteString("=")
		b.WriteString(src.fingerprint)
	}
	return b.String()
}

func (m *Memo) get(key string, version store.Version) (*Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.version != version {
		return nil, false
	}
	res := e.result
	res.Tables = append([]TableLoad(nil), e.result.Tables...)
	return &res, true
}

func (m *Memo) put(key string, version store.Version, res *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoEntry{version: version, result: *res}
	entry.result.Tables = append([]TableLoad(nil), res.Tables...)
	m.entries[key] = entry
}

package availability

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"maps"
	"slices"
	"sync"
	"time"
)

// Memo caches Compute results keyed by a digest of the whole Input. Oldest
// entries are evicted first once more than size are held.
type Memo struct {
	mu      sync.Mutex
	size    int
	order   []string
	entries map[string]Stats

	hits, misses int
}

func NewMemo(size int) *Memo {
	if size <= 0 {
		size = 32
	}
	return &Memo{size: size, entries: make(map[string]Stats, size)}
}

// Compute returns the cached Stats for an identical input, or computes and
// stores them.
func (m *Memo) Compute(in Input) Stats {
	key := InputKey(in)

	m.mu.Lock()
	if s, ok := m.entries[key]; ok {
		m.hits++
		m.mu.Unlock()
		return s
	}
	m.misses++
	m.mu.Unlock()

	s := Compute(in)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		m.entries[key] = s
		m.order = append(m.order, key)
		for len(m.order) > m.size {
			delete(m.entries, m.order[0])
			m.order = m.order[1:]
		}
	}
	return s
}

// Reset drops every cached entry.
func (m *Memo) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = nil
	clear(m.entries)
}

// Counters returns hit and miss counts since creation.
func (m *Memo) Counters() (hits, misses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}

// InputKey is a stable digest of everything Compute reads.
func InputKey(in Input) string {
	h := sha256.New()
	loc := in.Location
	if loc == nil {
		loc = time.Local
	}
	scope := in.Scope
	if scope == "" {
		scope = ScopeGroup
	}

	fmt.Fprintf(h, "loc=%s scope=%s window=%d-%d\n", loc, scope, in.Window.StartHour, in.Window.EndHour)
	fmt.Fprintf(h, "range=%s..%s\n", stamp(in.Range.Start), stamp(in.Range.End))
	writeSet(h, "active", in.Active)
	writeSet(h, "overlay", in.Overlay)
	for _, src := range in.Sources {
		fmt.Fprintf(h, "src %q %q %t\n", src.ID, src.Name, src.Overlay)
	}
	for _, ev := range in.Events {
		fmt.Fprintf(h, "ev %q %q %q %q %s %s %t %t %t %t\n",
			ev.SourceID, ev.SourceName, ev.UID, ev.Summary,
			stamp(ev.Start), stamp(ev.End),
			ev.AllDay, ev.Urgent, ev.FreeOverride, ev.IsRecurring())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// stamp is exact for any year; UnixNano wraps outside 1678-2262.
func stamp(t time.Time) string {
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}

func writeSet(h hash.Hash, name string, set map[string]bool) {
	if set == nil {
		fmt.Fprintf(h, "%s=*\n", name)
		return
	}
	fmt.Fprintf(h, "%s=", name)
	for _, id := range slices.Sorted(maps.Keys(set)) {
		if set[id] {
			fmt.Fprintf(h, "%q,", id)
		}
	}
	h.Write([]byte{'\n'})
}

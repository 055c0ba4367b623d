package availability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"slices"
)

// Stats maps ISO dates to DayStat in chronological order. Treat values as
// read-only; they may be shared with a Memo.
type Stats struct {
	days  []DayStat
	index map[string]int
}

func newStats(days []DayStat) Stats {
	s := Stats{days: days, index: make(map[string]int, len(days))}
	for i, d := range days {
		s.index[d.Date] = i
	}
	return s
}

func (s Stats) Len() int { return len(s.days) }

func (s Stats) Get(date string) (DayStat, bool) {
	i, ok := s.index[date]
	if !ok {
		return DayStat{}, false
	}
	return s.days[i], true
}

// Keys returns the dates in chronological order.
func (s Stats) Keys() []string {
	keys := make([]string, len(s.days))
	for i, d := range s.days {
		keys[i] = d.Date
	}
	return keys
}

func (s Stats) Days() []DayStat {
	return slices.Clone(s.days)
}

func (s Stats) All() iter.Seq2[string, DayStat] {
	return func(yield func(string, DayStat) bool) {
		for _, d := range s.days {
			if !yield(d.Date, d) {
				return
			}
		}
	}
}

// MarshalJSON writes an object whose keys keep chronological order.
func (s Stats) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range s.days {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(d.Date)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", d.Date, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the object form back, keeping document order.
func (s *Stats) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = newStats(nil)
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("stats: expected object, got %v", tok)
	}

	var days []DayStat
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var d DayStat
		if err := dec.Decode(&d); err != nil {
			return fmt.Errorf("stats %s: %w", key, err)
		}
		if d.Date == "" {
			d.Date = key
		}
		days = append(days, d)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = newStats(days)
	return nil
}

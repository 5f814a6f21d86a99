// Package index holds the in-memory time index over a table's records.
package index

import "sort"

// Entry maps a record timestamp to its storage position in the table.
type Entry struct {
	Time     float64
	Position int
}

// TimeIndex keeps entries sorted ascending by timestamp. Positions are dense:
// removing an entry shifts every higher position down by one so they stay
// valid indices into a table that erased the same slot.
//
// Timestamps are assumed unique; the index does not de-duplicate.
type TimeIndex struct {
	entries     []Entry
	maxPosition int
}

// NewTimeIndex returns an empty index.
func NewTimeIndex() *TimeIndex {
	return &TimeIndex{maxPosition: -1}
}

// Len returns the number of entries.
func (ti *TimeIndex) Len() int { return len(ti.entries) }

// MaxPosition returns the highest position assigned, or -1 when empty.
func (ti *TimeIndex) MaxPosition() int { return ti.maxPosition }

// NextPosition returns the position the next appended record receives.
func (ti *TimeIndex) NextPosition() int { return ti.maxPosition + 1 }

// Insert adds e while keeping the entries sorted by timestamp.
func (ti *TimeIndex) Insert(e Entry) {
	idx := ti.LowerBound(e.Time)
	ti.entries = append(ti.entries, Entry{})
	copy(ti.entries[idx+1:], ti.entries[idx:])
	ti.entries[idx] = e
	if e.Position > ti.maxPosition {
		ti.maxPosition = e.Position
	}
}

// LowerBound returns the index of the first entry whose timestamp is >= t,
// or Len() if there is none.
func (ti *TimeIndex) LowerBound(t float64) int {
	return sort.Search(len(ti.entries), func(i int) bool {
		return ti.entries[i].Time >= t
	})
}

// upperBound returns the index of the first entry whose timestamp is > t,
// searching from lo.
func (ti *TimeIndex) upperBound(lo int, t float64) int {
	n := len(ti.entries) - lo
	return lo + sort.Search(n, func(i int) bool {
		return ti.entries[lo+i].Time > t
	})
}

// Find returns the entry with timestamp exactly t.
func (ti *TimeIndex) Find(t float64) (Entry, bool) {
	i := ti.LowerBound(t)
	if i < len(ti.entries) && ti.entries[i].Time == t {
		return ti.entries[i], true
	}
	return Entry{}, false
}

// Range returns the entries with start <= timestamp <= end in ascending
// order. The result is a copy.
func (ti *TimeIndex) Range(start, end float64) []Entry {
	lo := ti.LowerBound(start)
	hi := ti.upperBound(lo, end)
	if hi <= lo {
		return nil
	}
	out := make([]Entry, hi-lo)
	copy(out, ti.entries[lo:hi])
	return out
}

// RemoveByPosition deletes the entry that references pos and decrements
// every higher position.
func (ti *TimeIndex) RemoveByPosition(pos int) (Entry, bool) {
	found := -1
	for i, e := range ti.entries {
		if e.Position == pos {
			found = i
			break
		}
	}
	if found < 0 {
		return Entry{}, false
	}
	removed := ti.entries[found]
	ti.entries = append(ti.entries[:found], ti.entries[found+1:]...)
	for i := range ti.entries {
		if ti.entries[i].Position > pos {
			ti.entries[i].Position--
		}
	}
	if ti.maxPosition >= 0 {
		ti.maxPosition--
	}
	return removed, true
}

// Entries returns a copy of all entries in timestamp order.
func (ti *TimeIndex) Entries() []Entry {
	out := make([]Entry, len(ti.entries))
	copy(out, ti.entries)
	return out
}

// Reset drops every entry.
func (ti *TimeIndex) Reset() {
	ti.entries = nil
	ti.maxPosition = -1
}

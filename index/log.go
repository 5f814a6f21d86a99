package index

// Log is an insertion-ordered list of entries. The engine keeps one for
// records appended since the last checkpoint and one for records deleted
// since the last compaction.
type Log struct {
	entries []Entry
}

// Add appends e.
func (l *Log) Add(e Entry) { l.entries = append(l.entries, e) }

// Len returns the number of entries.
func (l *Log) Len() int { return len(l.entries) }

// Empty reports whether the log holds nothing.
func (l *Log) Empty() bool { return len(l.entries) == 0 }

// Entries returns a copy in insertion order.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Clear drops every entry.
func (l *Log) Clear() { l.entries = nil }

// RemovePosition drops the entry referencing pos, if any, and shifts higher
// positions down by one, mirroring TimeIndex.RemoveByPosition.
func (l *Log) RemovePosition(pos int) bool {
	removed := false
	kept := l.entries[:0]
	for _, e := range l.entries {
		switch {
		case e.Position == pos:
			removed = true
			continue
		case e.Position > pos:
			e.Position--
		}
		kept = append(kept, e)
	}
	l.entries = kept
	return removed
}

package transcript

// Origin attributes an entry to the local user or to the remote peer.
type Origin int

const (
	Self Origin = iota
	Peer
)

// String returns the wire-stable name of the origin.
func (o Origin) String() string {
	switch o {
	case Self:
		return "self"
	case Peer:
		return "peer"
	default:
		return "unknown"
	}
}

// Label returns the attribution shown next to an entry.
func (o Origin) Label() string {
	if o == Self {
		return "You"
	}

	return "Friends"
}

// Entry is one immutable transcript line.
type Entry struct {
	Body   string
	Origin Origin
}

// Transcript is an append-only ordered log of entries.
//
// It is not safe for concurrent use; the owning session serializes access.
type Transcript struct {
	entries []Entry
}

// New returns an empty transcript.
func New() *Transcript {
	return &Transcript{}
}

// Append adds an entry at the end and returns the new length.
func (t *Transcript) Append(entry Entry) int {
	t.entries = append(t.entries, entry)
	return len(t.entries)
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the entries in insertion order.
func (t *Transcript) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Count returns how many entries carry the given origin.
func (t *Transcript) Count(origin Origin) int {
	count := 0
	for _, entry := range t.entries {
		if entry.Origin == origin {
			count++
		}
	}

	return count
}

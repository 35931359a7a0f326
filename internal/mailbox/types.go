package mailbox

import (
	"time"

	"github.com/emersion/go-imap/v2"
)

// Handle identifies one message within an open session.
type Handle uint32

// Part selects which portions of a message to fetch.
type Part int

const (
	PartHeader Part = iota
	PartText
	PartFull
)

// SearchFilter bounds a mailbox search. The criteria are combined
// with logical AND.
type SearchFilter struct {
	UnseenOnly bool
	Since      time.Time
}

// RawMessage is the transient, per-fetch form of a message. It is
// consumed by the decoder within the same scan pass and never
// persisted.
type RawMessage struct {
	UID      Handle
	Envelope *imap.Envelope
	Header   []byte
	Text     []byte
	Full     []byte
}

// Bytes returns the most complete raw view of the message available
// from the fetched parts.
func (r *RawMessage) Bytes() []byte {
	if len(r.Full) > 0 {
		return r.Full
	}
	if len(r.Header) == 0 && len(r.Text) == 0 {
		return nil
	}
	buf := make([]byte, 0, len(r.Header)+len(r.Text))
	buf = append(buf, r.Header...)
	buf = append(buf, r.Text...)
	return buf
}

// Package protocol defines the relay wire frames.
//
// Frames use the protobuf wire format of:
//
//	message Frame {
//	  Kind   kind = 1;
//	  string from = 2;
//	  string body = 3;
//	}
package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldKind protowire.Number = 1
	fieldFrom protowire.Number = 2
	fieldBody protowire.Number = 3
)

// ErrMalformedFrame marks input that is not a valid frame encoding.
var ErrMalformedFrame = errors.New("malformed frame")

// Kind is the frame type.
type Kind int

const (
	KindMessage Kind = iota
	KindJoin
	KindLeave
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "MESSAGE"
	case KindJoin:
		return "JOIN"
	case KindLeave:
		return "LEAVE"
	default:
		return "UNKNOWN"
	}
}

// Frame is one relay message.
type Frame struct {
	Kind Kind
	From string
	Body string
}

// Encode encodes the frame into protobuf wire bytes.
func (f *Frame) Encode() ([]byte, error) {
	if f.Kind < KindMessage || f.Kind > KindLeave {
		return nil, fmt.Errorf("encode frame: unknown kind %d", f.Kind)
	}

	var b []byte
	if f.Kind != KindMessage {
		b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(f.Kind))
	}
	if f.From != "" {
		b = protowire.AppendTag(b, fieldFrom, protowire.BytesType)
		b = protowire.AppendString(b, f.From)
	}
	if f.Body != "" {
		b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
		b = protowire.AppendString(b, f.Body)
	}

	return b, nil
}

// Decode populates the frame from protobuf wire bytes. Unknown fields are
// skipped and unknown kinds decode as KindMessage.
func (f *Frame) Decode(data []byte) error {
	var out Frame

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return malformed(protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return malformed(protowire.ParseError(m))
			}
			out.Kind = kindFromWire(v)
			n = m
		case num == fieldFrom && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(data)
			if m < 0 {
				return malformed(protowire.ParseError(m))
			}
			out.From = v
			n = m
		case num == fieldBody && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(data)
			if m < 0 {
				return malformed(protowire.ParseError(m))
			}
			out.Body = v
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return malformed(protowire.ParseError(n))
			}
		}
		data = data[n:]
	}

	*f = out
	return nil
}

func kindFromWire(v uint64) Kind {
	switch Kind(v) {
	case KindJoin:
		return KindJoin
	case KindLeave:
		return KindLeave
	default:
		return KindMessage
	}
}

func malformed(err error) error {
	return fmt.Errorf("decode frame: %w: %w", ErrMalformedFrame, err)
}

// Message builds a chat message frame.
func Message(from, body string) Frame {
	return Frame{Kind: KindMessage, From: from, Body: body}
}

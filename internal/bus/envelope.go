// Package bus provides the publish/subscribe transport components use to
// talk to each other: an in-process implementation for single-instance runs
// and a Redis-backed one for multi-instance deployments, both speaking the
// same length-prefixed binary envelope.
package bus

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Envelope is one message on the bus: a topic, an opaque value (callers
// JSON-encode the payload before handing it to Publish), and an optional
// correlation id threaded through request/response flows.
type Envelope struct {
	Topic         string
	Value         []byte
	CorrelationID *uuid.UUID
}

const maxTopicLen = 1<<16 - 1
const maxValueLen = 1 << 28

// EncodeEnvelope serializes an Envelope as:
//
//	[2 bytes topic len][topic][4 bytes value len][value][1 byte has-correlation][16 bytes correlation id]
//
// the correlation id block is present only when has-correlation is 1.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	if len(e.Topic) > maxTopicLen {
		return nil, fmt.Errorf("encode envelope: topic too long (%d bytes)", len(e.Topic))
	}
	if len(e.Value) > maxValueLen {
		return nil, fmt.Errorf("encode envelope: value too long (%d bytes)", len(e.Value))
	}

	size := 2 + len(e.Topic) + 4 + len(e.Value) + 1
	if e.CorrelationID != nil {
		size += 16
	}
	buf := make([]byte, size)
	off := 0

	binary.BigEndian.PutUint16(buf[off:], uint16(len(e.Topic)))
	off += 2
	off += copy(buf[off:], e.Topic)

	binary.BigEndian.PutUint32(buf[off:], uint32(len(e.Value)))
	off += 4
	off += copy(buf[off:], e.Value)

	if e.CorrelationID != nil {
		buf[off] = 1
		off++
		off += copy(buf[off:], e.CorrelationID[:])
	} else {
		buf[off] = 0
		off++
	}

	return buf[:off], nil
}

// DecodeEnvelope is the inverse of EncodeEnvelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	off := 0

	if len(data) < off+2 {
		return e, fmt.Errorf("decode envelope: truncated topic length")
	}
	topicLen := int(binary.BigEndian.Uint16(data[off:]))
	off += 2

	if len(data) < off+topicLen {
		return e, fmt.Errorf("decode envelope: truncated topic")
	}
	e.Topic = string(data[off : off+topicLen])
	off += topicLen

	if len(data) < off+4 {
		return e, fmt.Errorf("decode envelope: truncated value length")
	}
	valueLen := int(binary.BigEndian.Uint32(data[off:]))
	off += 4

	if len(data) < off+valueLen {
		return e, fmt.Errorf("decode envelope: truncated value")
	}
	e.Value = append([]byte(nil), data[off:off+valueLen]...)
	off += valueLen

	if len(data) < off+1 {
		return e, fmt.Errorf("decode envelope: truncated correlation flag")
	}
	hasCorrelation := data[off]
	off++

	if hasCorrelation == 1 {
		if len(data) < off+16 {
			return e, fmt.Errorf("decode envelope: truncated correlation id")
		}
		var id uuid.UUID
		copy(id[:], data[off:off+16])
		e.CorrelationID = &id
		off += 16
	}

	return e, nil
}

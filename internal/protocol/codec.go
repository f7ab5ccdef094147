// Package protocol implements the framing used between the game client and
// the training server: a 4-byte big-endian length prefix, a one-byte message
// tag, and a UTF-8 JSON payload. The length counts the tag plus payload,
// not itself.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameLen bounds a single frame. A length field above this almost
// certainly means the stream is desynchronized, so it is treated as a
// transport error rather than an allocation request.
const MaxFrameLen = 1 << 24

// Decode reads exactly one frame from r and returns its tag and raw JSON
// payload. A peer close at the length-field boundary is reported as io.EOF;
// a close mid-frame is a *TransportError. An unknown tag or a payload that
// is not valid JSON is a *ProtocolError; the frame has been fully consumed
// in that case, so the caller may keep reading from r.
func Decode(r io.Reader) (MessageType, json.RawMessage, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, &TransportError{Op: "read length prefix", Err: err}
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > MaxFrameLen {
		return 0, nil, &TransportError{Op: "length prefix", Err: fmt.Errorf("invalid frame length %d", length)}
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, &TransportError{Op: "read frame", Err: err}
	}

	msgType := MessageType(frame[0])
	if !msgType.Valid() {
		return msgType, nil, &ProtocolError{Reason: fmt.Sprintf("unknown message type %d", frame[0])}
	}

	payload := json.RawMessage(frame[1:])
	if len(payload) > 0 && !json.Valid(payload) {
		return msgType, nil, &ProtocolError{Reason: fmt.Sprintf("%s payload is not valid JSON", msgType)}
	}
	return msgType, payload, nil
}

// Encode builds a complete frame for the given tag and payload. A nil
// payload produces an empty-body frame (length field 1).
func Encode(msgType MessageType, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
		}
		body = b
	}

	frame := make([]byte, 4+1+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(1+len(body)))
	frame[4] = byte(msgType)
	copy(frame[5:], body)
	return frame, nil
}

// Write encodes one message and writes the whole frame to w.
func Write(w io.Writer, msgType MessageType, payload any) error {
	frame, err := Encode(msgType, payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return &TransportError{Op: "write frame", Err: err}
	}
	return nil
}

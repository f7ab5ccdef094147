package protocol

import "fmt"

// TransportError means the byte stream itself is broken (connection reset,
// truncated frame, corrupt length field). The connection cannot be reused.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means a single frame was well-delimited but unusable
// (unknown tag, malformed JSON). The stream stays aligned, so the connection
// can keep serving after an ERROR response.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol: " + e.Reason
}

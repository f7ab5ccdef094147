package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		payload any
	}{
		{"initialize", MsgInitialize, InitRequest{BossName: "hornet", ObservationSize: 32, ActionSpaceShape: []int{3, 3, 2}}},
		{"get_action", MsgGetAction, ActionRequest{State: json.RawMessage(`[0.1,0.2,0.3]`)}},
		{"store_transition", MsgStoreTransition, TransitionRequest{
			State:     json.RawMessage(`[1,2]`),
			Action:    []int{1},
			Reward:    -0.5,
			NextState: json.RawMessage(`[3,4]`),
			Done:      true,
		}},
		{"init_response", MsgInitResponse, InitResponse{Initialized: true, BossName: "hornet", ObservationSize: 32, CheckpointLoaded: true}},
		{"action_response", MsgActionResponse, ActionResponse{Action: []int{2, 0, 1}}},
		{"transition_ack", MsgTransitionAck, TransitionAck{Success: true}},
		{"error", MsgError, ErrorResponse{Error: "something broke"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.msgType, tt.payload)
			require.NoError(t, err)

			gotType, gotPayload, err := Decode(bytes.NewReader(frame))
			require.NoError(t, err)
			assert.Equal(t, tt.msgType, gotType)

			want, err := json.Marshal(tt.payload)
			require.NoError(t, err)
			assert.JSONEq(t, string(want), string(gotPayload))
		})
	}
}

func TestEncodeLengthCountsTagAndPayloadOnly(t *testing.T) {
	frame, err := Encode(MsgTransitionAck, TransitionAck{Success: true})
	require.NoError(t, err)

	length := binary.BigEndian.Uint32(frame[:4])
	assert.Equal(t, uint32(len(frame)-4), length)
	assert.Equal(t, byte(MsgTransitionAck), frame[4])
}

func TestDecodeEmptyPayload(t *testing.T) {
	frame, err := Encode(MsgGetAction, nil)
	require.NoError(t, err)
	assert.Len(t, frame, 5)

	msgType, payload, err := Decode(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, MsgGetAction, msgType)
	assert.Empty(t, payload)
}

func TestDecodeCleanEndOfStream(t *testing.T) {
	_, _, err := Decode(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}

func TestDecodePartialLengthPrefixIsTransportError(t *testing.T) {
	_, _, err := Decode(bytes.NewReader([]byte{0x00, 0x00}))

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
}

func TestDecodeTruncatedFrameIsTransportError(t *testing.T) {
	frame, err := Encode(MsgError, ErrorResponse{Error: "boom"})
	require.NoError(t, err)

	_, _, err = Decode(bytes.NewReader(frame[:len(frame)-3]))

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
}

func TestDecodeUnknownTagIsProtocolError(t *testing.T) {
	frame := []byte{0x00, 0x00, 0x00, 0x01, 0x42}

	_, _, err := Decode(bytes.NewReader(frame))

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "unknown message type")
}

func TestDecodeUnknownTagConsumesWholeFrame(t *testing.T) {
	bad := []byte{0x00, 0x00, 0x00, 0x03, 0x42, '{', '}'}
	good, err := Encode(MsgTransitionAck, TransitionAck{Success: true})
	require.NoError(t, err)

	r := bytes.NewReader(append(bad, good...))

	_, _, err = Decode(r)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)

	// Stream is still aligned: the next frame decodes normally.
	msgType, _, err := Decode(r)
	require.NoError(t, err)
	assert.Equal(t, MsgTransitionAck, msgType)
}

func TestDecodeMalformedJSONIsProtocolError(t *testing.T) {
	body := []byte(`{"state": [1, 2`)
	frame := make([]byte, 5+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(1+len(body)))
	frame[4] = byte(MsgStoreTransition)
	copy(frame[5:], body)

	_, _, err := Decode(bytes.NewReader(frame))

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "not valid JSON")
}

func TestDecodeOversizedFrameIsTransportError(t *testing.T) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameLen+1)

	_, _, err := Decode(bytes.NewReader(header[:]))

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
}

func TestDecodeZeroLengthFrameIsTransportError(t *testing.T) {
	_, _, err := Decode(bytes.NewReader([]byte{0, 0, 0, 0}))

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
}

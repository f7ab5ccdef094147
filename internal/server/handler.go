package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mitchelldurbincs/bossrl/internal/protocol"
	"github.com/mitchelldurbincs/bossrl/internal/training"
)

// handler owns one client connection: decode a message, dispatch it, send
// the response or error, repeat. Each message is fully answered before the
// next is decoded.
type handler struct {
	conn   net.Conn
	orch   *training.Orchestrator
	reader *bufio.Reader
	writer *bufio.Writer
	logger zerolog.Logger
}

func newHandler(conn net.Conn, orch *training.Orchestrator) *handler {
	return &handler{
		conn:   conn,
		orch:   orch,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		logger: log.With().
			Str("component", "conn_handler").
			Str("conn_id", uuid.New().String()).
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
	}
}

// run loops until end of stream or a transport error. Handling errors are
// converted to ERROR responses and never terminate the connection.
func (h *handler) run() {
	defer h.conn.Close()
	h.logger.Info().Msg("Game client connected")

	for {
		msgType, payload, err := protocol.Decode(h.reader)
		if err != nil {
			var perr *protocol.ProtocolError
			if errors.As(err, &perr) {
				if werr := h.writeError(err); werr != nil {
					h.logger.Warn().Err(werr).Msg("Failed to send error response")
					return
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				h.logger.Info().Msg("Game client disconnected")
			} else {
				h.logger.Warn().Err(err).Msg("Transport error, closing connection")
			}
			return
		}

		respType, resp, err := h.dispatch(msgType, payload)
		if err != nil {
			h.logger.Debug().
				Err(err).
				Str("message_type", msgType.String()).
				Msg("Request failed")
			if werr := h.writeError(err); werr != nil {
				h.logger.Warn().Err(werr).Msg("Failed to send error response")
				return
			}
			continue
		}

		if err := h.write(respType, resp); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send response, closing connection")
			return
		}
	}
}

func (h *handler) dispatch(msgType protocol.MessageType, payload json.RawMessage) (protocol.MessageType, any, error) {
	switch msgType {
	case protocol.MsgInitialize:
		var req protocol.InitRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return 0, nil, &protocol.ProtocolError{Reason: "malformed INITIALIZE payload: " + err.Error()}
		}
		spec := observationSpecFrom(req)
		loaded, err := h.orch.Initialize(req.BossName, spec, req.ActionSpaceShape)
		if err != nil {
			return 0, nil, err
		}
		return protocol.MsgInitResponse, protocol.InitResponse{
			Initialized:      true,
			BossName:         req.BossName,
			ObservationSize:  spec.Size,
			CheckpointLoaded: loaded,
		}, nil

	case protocol.MsgGetAction:
		var req protocol.ActionRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return 0, nil, &protocol.ProtocolError{Reason: "malformed GET_ACTION payload: " + err.Error()}
		}
		action, err := h.orch.GetAction(req.State)
		if err != nil {
			return 0, nil, err
		}
		return protocol.MsgActionResponse, protocol.ActionResponse{Action: action}, nil

	case protocol.MsgStoreTransition:
		var req protocol.TransitionRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return 0, nil, &protocol.ProtocolError{Reason: "malformed STORE_TRANSITION payload: " + err.Error()}
		}
		if err := h.orch.StoreTransition(req.State, req.Action, req.Reward, req.NextState, req.Done); err != nil {
			return 0, nil, err
		}
		return protocol.MsgTransitionAck, protocol.TransitionAck{Success: true}, nil

	default:
		// Valid tag, but not one a client may send.
		return 0, nil, &protocol.ProtocolError{Reason: "unexpected message type " + msgType.String()}
	}
}

// observationSpecFrom applies the INITIALIZE defaults: vector observations,
// with the vector part covering the whole observation.
func observationSpecFrom(req protocol.InitRequest) training.ObservationSpec {
	obsType := training.ObsVector
	if req.ObservationType != "" {
		obsType = training.ObservationType(req.ObservationType)
	}
	vectorSize := req.VectorObsSize
	if vectorSize == 0 {
		vectorSize = req.ObservationSize
	}
	return training.ObservationSpec{
		Type:         obsType,
		Size:         req.ObservationSize,
		VectorSize:   vectorSize,
		VisualWidth:  req.VisualWidth,
		VisualHeight: req.VisualHeight,
	}
}

func (h *handler) write(msgType protocol.MessageType, payload any) error {
	if err := protocol.Write(h.writer, msgType, payload); err != nil {
		return err
	}
	if err := h.writer.Flush(); err != nil {
		return &protocol.TransportError{Op: "flush", Err: err}
	}
	return nil
}

func (h *handler) writeError(cause error) error {
	return h.write(protocol.MsgError, protocol.ErrorResponse{Error: cause.Error()})
}

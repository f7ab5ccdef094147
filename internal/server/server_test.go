package server

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/bossrl/internal/protocol"
	"github.com/mitchelldurbincs/bossrl/internal/training"
)

func startTestServer(t *testing.T) (*Server, net.Addr) {
	t.Helper()

	orch, err := training.NewOrchestrator(&stubEngine{action: []int{0}}, 100, 0)
	require.NoError(t, err)

	srv := New("127.0.0.1:0", orch)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			t.Errorf("serve: %v", err)
		}
	}()

	var addr net.Addr
	require.Eventually(t, func() bool {
		addr = srv.Addr()
		return addr != nil
	}, 2*time.Second, 10*time.Millisecond)

	t.Cleanup(srv.Stop)
	return srv, addr
}

func TestServerServesOverTCP(t *testing.T) {
	_, addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	respType, payload := sendRecv(t, conn, protocol.MsgInitialize, initPayload())
	assert.Equal(t, protocol.MsgInitResponse, respType)

	var initResp protocol.InitResponse
	require.NoError(t, json.Unmarshal(payload, &initResp))
	assert.True(t, initResp.Initialized)
}

func TestServerStopClosesConnections(t *testing.T) {
	srv, addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	respType, _ := sendRecv(t, conn, protocol.MsgInitialize, initPayload())
	require.Equal(t, protocol.MsgInitResponse, respType)

	srv.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = protocol.Decode(conn)
	assert.Error(t, err)
}

func TestServerBindFailureIsReturned(t *testing.T) {
	orch, err := training.NewOrchestrator(&stubEngine{}, 100, 0)
	require.NoError(t, err)

	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	srv := New(occupied.Addr().String(), orch)
	assert.Error(t, srv.ListenAndServe())
}

package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/adwski/drawing-board/backend/model"
	"github.com/adwski/drawing-board/backend/service"
	"github.com/adwski/drawing-board/backend/storage/memory"
	sw "github.com/adwski/drawing-board/backend/switch"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) (*httptest.Server, *service.Service) {
	t.Helper()
	logger := zerolog.Nop()
	svc := service.NewService(service.Config{
		RoomRegistry: memory.NewMemStore(memory.Config{Logger: &logger, HashCost: bcrypt.MinCost}),
		Switch:       sw.NewSwitch(&logger),
		Logger:       &logger,
	})
	h := NewHandler(Config{Logger: &logger, Gateway: svc})
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		h.Close()
	})
	return srv, svc
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, data string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

func read(t *testing.T, conn *websocket.Conn, typ string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, typ, f.Type, "payload: %s", f.Payload)
	return f
}

func TestHandler_RoomLifecycle(t *testing.T) {
	srv, svc := newTestServer(t)
	alice := dial(t, srv)
	bob := dial(t, srv)

	send(t, alice, `{"type":"join","payload":{"name":"Alice","roomId":"r1"}}`)
	var welcome struct {
		ID     string `json:"id"`
		RoomID string `json:"roomId"`
		Color  string `json:"color"`
	}
	require.NoError(t, json.Unmarshal(read(t, alice, "welcome").Payload, &welcome))
	assert.NotEmpty(t, welcome.ID)
	assert.Equal(t, "r1", welcome.RoomID)
	assert.Equal(t, "#e74c3c", welcome.Color)
	read(t, alice, "state")

	send(t, bob, `{"type":"join","payload":{"name":"Bob","roomId":"r1"}}`)
	read(t, bob, "welcome")
	read(t, bob, "state")
	read(t, alice, "state")

	send(t, bob, `{"type":"path:upsert","payload":{"path":{"id":"p1","points":[{"x":1,"y":2}],"color":"#000","width":2}}}`)
	for _, c := range []*websocket.Conn{alice, bob} {
		f := read(t, c, "path:upsert")
		var payload map[string]model.Element
		require.NoError(t, json.Unmarshal(f.Payload, &payload))
		assert.Equal(t, model.StatusInProgress, payload["path"].Status)
		assert.Equal(t, []model.Point{{X: 1, Y: 2}}, payload["path"].Path.Points)
	}

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	var state model.RoomState
	require.NoError(t, json.Unmarshal(read(t, alice, "state").Payload, &state))
	require.Len(t, state.Users, 1)
	assert.Equal(t, "Alice", state.Users[0].Name)
	require.Len(t, state.Paths, 1)

	assert.Eventually(t, func() bool {
		return svc.Stats().Connections == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestHandler_BadFrameKeepsConnection(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, `not json`)
	var payload struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(read(t, conn, "error").Payload, &payload))
	assert.Contains(t, payload.Message, "protocol error")

	send(t, conn, `{"type":"undo"}`)
	require.NoError(t, json.Unmarshal(read(t, conn, "error").Payload, &payload))
	assert.Contains(t, payload.Message, "not joined")

	send(t, conn, `{"type":"join"}`)
	read(t, conn, "welcome")
	read(t, conn, "state")
}

func TestHandler_LargeImage(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, `{"type":"join","payload":{"roomId":"img"}}`)
	read(t, conn, "welcome")
	read(t, conn, "state")

	data := "data:image/png;base64," + strings.Repeat("A", 1<<20)
	send(t, conn, `{"type":"image:add","payload":{"image":{"id":"i1","width":10,"height":10,"data":"`+data+`"}}}`)
	f := read(t, conn, "image:add")
	var payload map[string]model.Element
	require.NoError(t, json.Unmarshal(f.Payload, &payload))
	assert.Equal(t, data, payload["image"].Image.Data)
	read(t, conn, "redo-count")
}

func TestHandler_CloseDisconnectsAll(t *testing.T) {
	logger := zerolog.Nop()
	svc := service.NewService(service.Config{
		RoomRegistry: memory.NewMemStore(memory.Config{Logger: &logger, HashCost: bcrypt.MinCost}),
		Switch:       sw.NewSwitch(&logger),
		Logger:       &logger,
	})
	h := NewHandler(Config{Logger: &logger, Gateway: svc})
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	send(t, conn, `{"type":"join","payload":{"roomId":"r1"}}`)
	read(t, conn, "welcome")
	read(t, conn, "state")

	h.Close()
	assert.Equal(t, service.Stats{Rooms: 1}, svc.Stats())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

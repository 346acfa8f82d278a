package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/adwski/drawing-board/backend/model"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultDisconnectTimeout = 2 * time.Second

	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketMaxMessageSize     = 8 << 20 // inline images are sent as data URLs
	defaultWebSocketHandshakeTimeout   = 3 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	// defaultPongWait - defaultPingInterval == is how long we give client to respond
	defaultPingInterval = 10 * time.Second
	defaultPongWait     = 15 * time.Second
)

type (
	Gateway interface {
		Connect(ctx context.Context, connID string, wire model.Wire) error
		Disconnect(ctx context.Context, connID string) error
	}

	Config struct {
		Logger  *zerolog.Logger
		Gateway Gateway
	}

	// Handler upgrades requests to websocket connections and pumps
	// frames between each connection and its gateway wire.
	Handler struct {
		gw Gateway
		ws *websocket.Upgrader

		ctx    context.Context
		cancel context.CancelFunc
		wg     *sync.WaitGroup

		logger zerolog.Logger
	}
)

func NewHandler(cfg Config) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		logger: cfg.Logger.With().Str("component", "websocket").Logger(),
		gw:     cfg.Gateway,
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
		wg:     &sync.WaitGroup{},
	}
}

// Close terminates all open connections and waits for their
// participants to be removed.
func (h *Handler) Close() {
	h.cancel()
	h.wg.Wait()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.ws.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsConn{
		id:   uuid.NewString(),
		ws:   ws,
		wire: model.NewWire(),
	}
	c.logger = h.logger.With().Str("connID", c.id).Logger()

	ctx, cancel := context.WithCancel(h.ctx) // long-living wire context

	if err = h.gw.Connect(ctx, c.id, c.wire); err != nil {
		c.logger.Error().Err(err).Msg("failed to register connection")
		cancel()
		c.close()
		return
	}
	c.logger.Debug().Str("remote", r.RemoteAddr).Msg("connection opened")

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.run(ctx, cancel)
		h.disconnect(c)
	}()
}

func (h *Handler) disconnect(c *wsConn) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(defaultDisconnectTimeout))
	defer cancel()
	if err := h.gw.Disconnect(ctx, c.id); err != nil {
		c.logger.Error().Err(err).Msg("failed to unregister connection")
		return
	}
	c.logger.Debug().Msg("connection closed")
}

// wsConn pumps frames between one websocket and its gateway wire.
// Only the sender writes to ws until both pumps have stopped.
type wsConn struct {
	id     string
	ws     *websocket.Conn
	wire   model.Wire
	logger zerolog.Logger
}

func (c *wsConn) run(ctx context.Context, cancel context.CancelFunc) {
	go func() {
		<-ctx.Done()
		// unblock pending read
		_ = c.ws.UnderlyingConn().SetReadDeadline(time.Now())
	}()

	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.receive(ctx)
		cancel()
	}()
	go func() {
		defer wg.Done()
		c.send(ctx)
		cancel()
	}()
	wg.Wait()
	c.close()
}

func (c *wsConn) send(ctx context.Context) {
	pingTicker := time.NewTicker(defaultPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			if err := c.write(websocket.PingMessage, []byte{}); err != nil {
				c.logger.Error().Err(err).Msg("failed to send ping")
				return
			}
			c.logger.Trace().Msg("ping sent")

		case ev, ok := <-c.wire.TX:
			if !ok {
				return
			}
			b, err := json.Marshal(&ev)
			if err != nil {
				c.logger.Error().Err(err).Str("type", ev.Type).Msg("failed to marshall outgoing event")
				continue
			}
			if err = c.write(websocket.TextMessage, b); err != nil {
				c.logger.Error().Err(err).Msg("failed to write outgoing event")
				return
			}
		}
	}
}

func (c *wsConn) write(msgType int, b []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline)); err != nil {
		return err
	}
	return c.ws.WriteMessage(msgType, b)
}

// receive hands raw frames to the gateway. Decoding and error replies
// happen there, so a bad frame never drops the connection.
func (c *wsConn) receive(ctx context.Context) {
	c.ws.SetReadLimit(defaultWebSocketMaxMessageSize)
	extend := func() error {
		return c.ws.SetReadDeadline(time.Now().Add(defaultPongWait))
	}
	c.ws.SetPongHandler(func(string) error {
		c.logger.Trace().Msg("got pong")
		return extend()
	})
	if err := extend(); err != nil {
		c.logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

	for ctx.Err() == nil {
		msgType, msg, err := c.ws.ReadMessage()
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived):
				c.logger.Debug().Err(err).Msg("connection closed by peer")
			default:
				c.logger.Warn().Err(err).Msg("unexpected error during receive")
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		// any frame proves the peer is alive
		if err = extend(); err != nil {
			c.logger.Error().Err(err).Msg("failed to set websocket read deadline")
			return
		}

		select {
		case c.wire.RX <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (c *wsConn) close() {
	err := c.ws.SetWriteDeadline(time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to set websocket write deadline during closing")
	} else {
		err = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			c.logger.Debug().Err(err).Msg("failed to send close message")
		}
	}
	if err = c.ws.Close(); err != nil {
		c.logger.Error().Err(err).Msg("failed to close websocket connection")
	}
}

package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adwski/drawing-board/backend/model"
	"github.com/adwski/drawing-board/backend/storage/memory"
	"github.com/rs/zerolog"
)

const (
	defaultPersistTimeout = 5 * time.Second
	defaultReplyTimeout   = time.Second
)

var (
	ErrProtocol       = errors.New("protocol error")
	ErrNotJoined      = errors.New("not joined to a room")
	ErrAccessDenied   = memory.ErrAccessDenied
	ErrNotFound       = errors.New("not found")
	ErrUnknownCommand = errors.New("unknown command")

	ErrConnectionExists  = errors.New("connection already exists")
	ErrConnectionUnknown = errors.New("connection is unknown")
)

type (
	RoomRegistry interface {
		GetOrCreate(roomID string, roomType model.RoomType, password string) (*memory.Room, bool, error)
		CheckPassword(room *memory.Room, password string) error
		UpdateSessions(roomID string, sessions map[string]model.Session)
		Records() map[string]model.RoomRecord
		List() []memory.RoomInfo
		Len() int
	}

	Switch interface {
		Connect(roomID, connID string, wire model.Wire)
		Disconnect(roomID, connID string)
		Broadcast(ctx context.Context, ev model.Event, roomID string) int
		Stats() (rooms, conns int)
	}

	Persister interface {
		SaveSnapshot(ctx context.Context, records map[string]model.RoomRecord) error
	}

	Service struct {
		registry RoomRegistry
		sw       Switch
		writer   *snapshotWriter
		logger   zerolog.Logger
		now      func() time.Time

		mx    *sync.Mutex
		conns map[string]*conn
	}

	Config struct {
		RoomRegistry RoomRegistry
		Switch       Switch
		// Persister is optional; without it nothing is written durably.
		Persister Persister
		Logger    *zerolog.Logger
	}

	Stats struct {
		Rooms       int `json:"rooms"`
		ActiveRooms int `json:"activeRooms"`
		Connections int `json:"connections"`
		Joined      int `json:"joined"`
	}
)

// conn is the gateway side of one transport connection.
// mx serializes its commands with its disconnect.
type conn struct {
	id     string
	wire   model.Wire
	mx     *sync.Mutex
	room   *memory.Room
	closed bool
}

func NewService(cfg Config) *Service {
	svc := &Service{
		registry: cfg.RoomRegistry,
		sw:       cfg.Switch,
		logger:   cfg.Logger.With().Str("component", "gateway").Logger(),
		now:      time.Now,
		mx:       &sync.Mutex{},
		conns:    make(map[string]*conn),
	}
	if cfg.Persister != nil {
		svc.writer = newSnapshotWriter(cfg.Persister, cfg.RoomRegistry.Records, cfg.Logger)
	}
	return svc
}

// Close flushes pending snapshot writes. Call it after all connections are gone.
func (svc *Service) Close() {
	if svc.writer != nil {
		svc.writer.close()
	}
}

// Connect registers a new unjoined connection and starts processing
// its inbound frames until ctx is done or wire.RX is closed.
func (svc *Service) Connect(ctx context.Context, connID string, wire model.Wire) error {
	svc.mx.Lock()
	if _, ok := svc.conns[connID]; ok {
		svc.mx.Unlock()
		return ErrConnectionExists
	}
	c := &conn{id: connID, wire: wire, mx: &sync.Mutex{}}
	svc.conns[connID] = c
	svc.mx.Unlock()

	svc.logger.Debug().Str("connID", connID).Msg("connection registered")
	go svc.serve(ctx, c)
	return nil
}

// Disconnect closes the connection and removes its participant from the room.
func (svc *Service) Disconnect(ctx context.Context, connID string) error {
	svc.mx.Lock()
	c, ok := svc.conns[connID]
	delete(svc.conns, connID)
	svc.mx.Unlock()
	if !ok {
		return ErrConnectionUnknown
	}

	c.mx.Lock()
	defer c.mx.Unlock()
	c.closed = true
	if c.room != nil {
		svc.leave(ctx, c)
	}
	svc.logger.Debug().Str("connID", connID).Msg("connection closed")
	return nil
}

func (svc *Service) Rooms() []memory.RoomInfo {
	return svc.registry.List()
}

func (svc *Service) Stats() Stats {
	svc.mx.Lock()
	conns := len(svc.conns)
	svc.mx.Unlock()

	active, joined := svc.sw.Stats()
	return Stats{
		Rooms:       svc.registry.Len(),
		ActiveRooms: active,
		Connections: conns,
		Joined:      joined,
	}
}

func (svc *Service) serve(ctx context.Context, c *conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.wire.RX:
			if !ok {
				return
			}
			svc.handle(ctx, c, data)
		}
	}
}

// reply sends an event to the connection only.
func (svc *Service) reply(ctx context.Context, c *conn, ev model.Event) {
	t := time.NewTimer(defaultReplyTimeout)
	defer t.Stop()
	select {
	case c.wire.TX <- ev:
	case <-ctx.Done():
	case <-t.C:
		svc.logger.Error().Str("connID", c.id).Str("type", ev.Type).Msg("reply dropped, dead endpoint")
	}
}

// persist schedules a registry snapshot write and returns at once.
// Failures are logged by the writer and never affect the live state.
func (svc *Service) persist() {
	if svc.writer != nil {
		svc.writer.request()
	}
}

// persistAndWait returns after the snapshot write completes or ctx is done.
// It must not be called while holding a room lock.
func (svc *Service) persistAndWait(ctx context.Context) {
	if svc.writer == nil {
		return
	}
	select {
	case <-svc.writer.request():
	case <-ctx.Done():
	}
}

// broadcast delivers to the whole room even if the originating
// connection is going away.
func (svc *Service) broadcast(ctx context.Context, ev model.Event, roomID string) {
	svc.sw.Broadcast(context.WithoutCancel(ctx), ev, roomID)
}

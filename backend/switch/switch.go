package _switch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adwski/drawing-board/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultFwdTimout = time.Second
)

var ErrDeadEndpoint = errors.New("endpoint did not accept event in time")

// Switch fans out events to every connection bound to a room.
type Switch struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	fwd    map[string]map[string]model.Wire
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		mx:     &sync.RWMutex{},
		fwd:    make(map[string]map[string]model.Wire),
	}
}

func (sw *Switch) Disconnect(roomID, connID string) {
	sw.mx.Lock()
	defer func() {
		sw.mx.Unlock()
		sw.logger.Debug().
			Str("roomID", roomID).
			Str("connID", connID).
			Msg("endpoint disconnected")
	}()

	room, ok := sw.fwd[roomID]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(sw.fwd, roomID)
	}
}

func (sw *Switch) Connect(roomID, connID string, wire model.Wire) {
	sw.mx.Lock()
	defer func() {
		sw.mx.Unlock()
		sw.logger.Debug().
			Str("roomID", roomID).
			Str("connID", connID).
			Msg("endpoint connected")
	}()

	room, ok := sw.fwd[roomID]
	if !ok {
		room = make(map[string]model.Wire)
		sw.fwd[roomID] = room
	}
	room[connID] = wire
}

// Broadcast delivers ev to every member of the room, the originator included.
// It returns the number of members that received it. A dead member is skipped;
// a done ctx stops the fan-out.
func (sw *Switch) Broadcast(ctx context.Context, ev model.Event, roomID string) int {
	logger := sw.logger.With().
		Str("roomID", roomID).
		Str("type", ev.Type).
		Logger()

	sw.mx.RLock()
	dsts := make(map[string]model.Wire, len(sw.fwd[roomID]))
	for id, wire := range sw.fwd[roomID] {
		dsts[id] = wire
	}
	sw.mx.RUnlock()

	var sent int
	for dst, wire := range dsts {
		err := deliver(ctx, ev, wire.TX)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, ErrDeadEndpoint):
			logger.Error().Str("dst", dst).Msg("dead endpoint")
		default:
			logger.Debug().Err(err).Int("sent", sent).Msg("broadcast interrupted")
			return sent
		}
	}
	if sent == 0 {
		logger.Debug().Msg("broadcast did not reach anyone")
	} else {
		logger.Trace().Int("sent", sent).Msg("event is forwarded")
	}
	return sent
}

// Stats reports the number of rooms with live connections and the connection count.
func (sw *Switch) Stats() (rooms, conns int) {
	sw.mx.RLock()
	defer sw.mx.RUnlock()

	rooms = len(sw.fwd)
	for _, room := range sw.fwd {
		conns += len(room)
	}
	return rooms, conns
}

// deliver puts ev on tx, giving up after defaultFwdTimout.
func deliver(ctx context.Context, ev model.Event, tx chan<- model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := time.NewTimer(defaultFwdTimout)
	defer t.Stop()

	select {
	case tx <- ev:
		return nil
	case <-t.C:
		return ErrDeadEndpoint
	case <-ctx.Done():
		return ctx.Err()
	}
}

package _switch

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/adwski/drawing-board/backend/model"
)

func newTestSwitch() *Switch {
	logger := zerolog.Nop()
	return NewSwitch(&logger)
}

func drain(w model.Wire) []model.Event {
	var out []model.Event
	for {
		select {
		case ev := <-w.TX:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestSwitch_Broadcast(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(*Switch) map[string]model.Wire
		room         string
		wantSent     int
		wantReceived map[string]int
	}{
		{
			name: "every room member including originator",
			setup: func(sw *Switch) map[string]model.Wire {
				w := map[string]model.Wire{"a": model.NewWire(), "b": model.NewWire()}
				sw.Connect("r1", "a", w["a"])
				sw.Connect("r1", "b", w["b"])
				return w
			},
			room:         "r1",
			wantSent:     2,
			wantReceived: map[string]int{"a": 1, "b": 1},
		},
		{
			name: "no cross-room broadcast",
			setup: func(sw *Switch) map[string]model.Wire {
				w := map[string]model.Wire{"a": model.NewWire(), "b": model.NewWire()}
				sw.Connect("r1", "a", w["a"])
				sw.Connect("r2", "b", w["b"])
				return w
			},
			room:         "r1",
			wantSent:     1,
			wantReceived: map[string]int{"a": 1, "b": 0},
		},
		{
			name: "disconnected member is skipped",
			setup: func(sw *Switch) map[string]model.Wire {
				w := map[string]model.Wire{"a": model.NewWire(), "b": model.NewWire()}
				sw.Connect("r1", "a", w["a"])
				sw.Connect("r1", "b", w["b"])
				sw.Disconnect("r1", "b")
				return w
			},
			room:         "r1",
			wantSent:     1,
			wantReceived: map[string]int{"a": 1, "b": 0},
		},
		{
			name: "unknown room",
			setup: func(sw *Switch) map[string]model.Wire {
				return map[string]model.Wire{}
			},
			room:         "nowhere",
			wantReceived: map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sw := newTestSwitch()
			wires := tt.setup(sw)

			sent := sw.Broadcast(context.Background(), model.Event{Type: "clear"}, tt.room)
			assert.Equal(t, tt.wantSent, sent)

			for id, w := range wires {
				assert.Len(t, drain(w), tt.wantReceived[id], "member %s", id)
			}
		})
	}
}

func TestSwitch_DeadEndpoint(t *testing.T) {
	sw := newTestSwitch()
	dead := model.Wire{RX: make(chan []byte), TX: make(chan model.Event)}
	live := model.NewWire()
	sw.Connect("r1", "dead", dead)
	sw.Connect("r1", "live", live)

	sent := sw.Broadcast(context.Background(), model.Event{Type: "state"}, "r1")
	assert.Equal(t, 1, sent)
	assert.Len(t, drain(live), 1)
}

func TestSwitch_CanceledContext(t *testing.T) {
	sw := newTestSwitch()
	blocked := model.Wire{RX: make(chan []byte), TX: make(chan model.Event)}
	sw.Connect("r1", "a", blocked)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, sw.Broadcast(ctx, model.Event{Type: "state"}, "r1"))
}

func TestSwitch_Stats(t *testing.T) {
	sw := newTestSwitch()
	rooms, conns := sw.Stats()
	assert.Zero(t, rooms)
	assert.Zero(t, conns)

	sw.Connect("r1", "a", model.NewWire())
	sw.Connect("r1", "b", model.NewWire())
	sw.Connect("r2", "c", model.NewWire())
	rooms, conns = sw.Stats()
	assert.Equal(t, 2, rooms)
	assert.Equal(t, 3, conns)

	sw.Disconnect("r2", "c")
	rooms, conns = sw.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 2, conns)
}

func TestDeliver(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		ctx     context.Context
		tx      chan model.Event
		wantErr error
	}{
		{
			name: "buffered endpoint",
			ctx:  context.Background(),
			tx:   make(chan model.Event, 1),
		},
		{
			name:    "endpoint never reads",
			ctx:     context.Background(),
			tx:      make(chan model.Event),
			wantErr: ErrDeadEndpoint,
		},
		{
			name:    "done context wins over a ready endpoint",
			ctx:     canceled,
			tx:      make(chan model.Event, 1),
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := deliver(tt.ctx, model.Event{Type: "state"}, tt.tx)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, tt.tx)
				return
			}
			assert.NoError(t, err)
			assert.Len(t, tt.tx, 1)
		})
	}
}

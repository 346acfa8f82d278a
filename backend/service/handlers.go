package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adwski/drawing-board/backend/board"
	"github.com/adwski/drawing-board/backend/model"
	"github.com/adwski/drawing-board/backend/protocol"
	"github.com/adwski/drawing-board/backend/storage/memory"
	"github.com/davecgh/go-spew/spew"
)

const (
	defaultRoomID   = "default"
	defaultUserName = "Anonymous"
)

// handle processes one inbound frame to completion.
// Failures are reported to the sender only and never close the connection.
func (svc *Service) handle(ctx context.Context, c *conn, data []byte) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.closed {
		return
	}

	logger := svc.logger.With().Str("connID", c.id).Logger()

	cmd, err := protocol.Decode(data)
	switch {
	case errors.Is(err, protocol.ErrUnknownType):
		if c.room == nil {
			err = ErrNotJoined
		} else {
			err = fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Type)
		}
	case err != nil:
		err = fmt.Errorf("%w: %w", ErrProtocol, err)
	default:
		if e := logger.Trace(); e.Enabled() {
			e.Str("command", spew.Sdump(cmd)).Msg("command decoded")
		}
		if cmd.Type == protocol.TypeJoin {
			err = svc.join(ctx, c, cmd.Join)
		} else if c.room == nil {
			err = ErrNotJoined
		} else {
			c.room.Do(func(b *board.Board) {
				err = svc.apply(ctx, c, b, cmd)
			})
		}
	}
	if err != nil {
		logger.Debug().Err(err).Str("type", cmd.Type).Msg("command failed")
		svc.reply(ctx, c, protocol.Error(err))
	}
}

func (svc *Service) join(ctx context.Context, c *conn, req *protocol.Join) error {
	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		roomID = defaultRoomID
	}
	roomType := req.RoomType
	if roomType == "" {
		roomType = model.RoomTypePublic
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultUserName
	}

	// the requested type only matters when the room is created
	room, created, err := svc.registry.GetOrCreate(roomID, roomType, req.Password)
	if errors.Is(err, memory.ErrInvalidRoomType) {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if err != nil {
		return err
	}
	if created {
		svc.persistAndWait(ctx)
	} else if err = svc.registry.CheckPassword(room, req.Password); err != nil {
		return err
	}

	if c.room != nil && c.room != room {
		svc.leave(ctx, c)
	}

	room.Do(func(b *board.Board) {
		p := b.Join(c.id, name)
		svc.sw.Connect(room.ID, c.id, c.wire)
		c.room = room
		svc.reply(ctx, c, protocol.Welcome(c.id, room.ID, room.Type, p.Color))
		svc.broadcast(ctx, protocol.State(b.Snapshot()), room.ID)
	})
	svc.logger.Info().
		Str("connID", c.id).
		Str("roomID", room.ID).
		Str("name", name).
		Msg("participant joined")
	return nil
}

// leave removes the participant from its room. The last one out
// clears the live drawing; sessions and room metadata stay.
func (svc *Service) leave(ctx context.Context, c *conn) {
	room := c.room
	room.Do(func(b *board.Board) {
		b.Leave(c.id)
		svc.sw.Disconnect(room.ID, c.id)
		if b.Len() == 0 {
			b.Clear()
			return
		}
		svc.broadcast(ctx, protocol.State(b.Snapshot()), room.ID)
	})
	c.room = nil
	svc.logger.Info().
		Str("connID", c.id).
		Str("roomID", room.ID).
		Msg("participant left")
}

// apply runs an in-room command. The caller holds the room lock, so the
// state change and its broadcasts are atomic with respect to other members.
func (svc *Service) apply(ctx context.Context, c *conn, b *board.Board, cmd protocol.Command) error {
	roomID := c.room.ID
	broadcast := func(ev model.Event) {
		svc.broadcast(ctx, ev, roomID)
	}

	switch cmd.Type {
	case protocol.TypeCursor:
		if b.MoveCursor(c.id, *cmd.Position) {
			broadcast(protocol.CursorMoved(c.id, *cmd.Position))
		}

	case protocol.TypePathUpsert, protocol.TypeShapeUpsert:
		e := *cmd.Element
		e.Author = c.id
		stored, err := b.Upsert(e)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		broadcast(protocol.ElementChanged(stored))

	case protocol.TypePathCommit, protocol.TypeShapeCommit:
		if e, ok := b.Commit(cmd.ID); ok {
			broadcast(protocol.ElementChanged(e))
			broadcast(protocol.RedoCount(b.RedoCount()))
		}

	case protocol.TypeTextAdd, protocol.TypeImageAdd:
		e := *cmd.Element
		e.Author = c.id
		stored, err := b.Add(e)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		broadcast(protocol.ElementChanged(stored))
		broadcast(protocol.RedoCount(b.RedoCount()))

	case protocol.TypeUndo:
		b.Undo()
		broadcast(protocol.State(b.Snapshot()))

	case protocol.TypeRedo:
		b.Redo()
		broadcast(protocol.State(b.Snapshot()))

	case protocol.TypeClear:
		b.Clear()
		broadcast(protocol.Cleared())
		broadcast(protocol.State(b.Snapshot()))

	case protocol.TypeSaveSession:
		s := b.SaveSession(cmd.Name, svc.now())
		svc.registry.UpdateSessions(roomID, b.SessionRecords())
		svc.persist()
		svc.reply(ctx, c, protocol.SessionSaved(s.ID, s.Name))
		broadcast(protocol.SessionList(b.Sessions()))

	case protocol.TypeLoadSession:
		s, err := b.LoadSession(cmd.SessionID)
		if errors.Is(err, board.ErrSessionNotFound) {
			return fmt.Errorf("%w: session %q", ErrNotFound, cmd.SessionID)
		}
		if err != nil {
			return err
		}
		broadcast(protocol.SessionLoaded(s.ID, s.Elements))
		broadcast(protocol.State(b.Snapshot()))

	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Type)
	}
	return nil
}

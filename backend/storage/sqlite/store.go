// Package sqlite persists room metadata and saved sessions.
// Each room is one row holding a JSON blob, so the table acts as a durable
// key-value store keyed by room id.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adwski/drawing-board/backend/model"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	ErrOpen   = errors.New("unable to open database")
	ErrLoad   = errors.New("unable to load snapshot")
	ErrSave   = errors.New("unable to save snapshot")
	ErrClosed = errors.New("store is closed")
)

const (
	schema = `CREATE TABLE IF NOT EXISTS rooms (
		id      text not null primary key,
		content text not null
	)`
	upsertRoom = `INSERT INTO rooms (id, content) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content
		WHERE content != excluded.content`
)

type Config struct {
	Logger *zerolog.Logger
	// Path is the database file. ":memory:" keeps everything in process.
	Path string
}

type Store struct {
	logger zerolog.Logger
	db     *sql.DB
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, errors.Join(ErrOpen, err)
	}
	// sqlite has a single writer; one connection also keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrOpen, err)
	}
	s := &Store{
		logger: cfg.Logger.With().Str("component", "sqlite").Logger(),
		db:     db,
	}
	s.logger.Debug().Str("path", cfg.Path).Msg("database ready")
	return s, nil
}

func (s *Store) LoadSnapshot(ctx context.Context) (map[string]model.RoomRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content FROM rooms`)
	if err != nil {
		return nil, errors.Join(ErrLoad, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error().Err(err).Msg("failed to close rows")
		}
	}()

	records := make(map[string]model.RoomRecord)
	for rows.Next() {
		var (
			roomID  string
			content string
			rec     model.RoomRecord
		)
		if err = rows.Scan(&roomID, &content); err != nil {
			return nil, errors.Join(ErrLoad, err)
		}
		if err = json.Unmarshal([]byte(content), &rec); err != nil {
			s.logger.Error().Err(err).Str("roomID", roomID).Msg("skipping undecodable room record")
			continue
		}
		records[roomID] = rec
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Join(ErrLoad, err)
	}
	s.logger.Debug().Int("rooms", len(records)).Msg("snapshot loaded")
	return records, nil
}

// SaveSnapshot writes every record in one transaction. Rooms missing
// from records are kept, rooms are never deleted.
func (s *Store) SaveSnapshot(ctx context.Context, records map[string]model.RoomRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Join(ErrSave, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertRoom)
	if err != nil {
		return errors.Join(ErrSave, err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	var changed int64
	for roomID, rec := range records {
		var content []byte
		if content, err = json.Marshal(&rec); err != nil {
			return errors.Join(ErrSave, fmt.Errorf("room %s: %w", roomID, err))
		}
		var res sql.Result
		if res, err = stmt.ExecContext(ctx, roomID, string(content)); err != nil {
			return errors.Join(ErrSave, fmt.Errorf("room %s: %w", roomID, err))
		}
		if n, errN := res.RowsAffected(); errN == nil {
			changed += n
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Join(ErrSave, err)
	}
	s.logger.Debug().
		Int("rooms", len(records)).
		Int64("changed", changed).
		Msg("snapshot saved")
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	return err
}

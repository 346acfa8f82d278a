package memory

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/adwski/drawing-board/backend/board"
	"github.com/adwski/drawing-board/backend/model"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAccessDenied    = errors.New("access denied")
	ErrRoomNotFound    = errors.New("room is not found")
	ErrInvalidRoomType = errors.New("invalid room type")
)

// Room is a registered room. All access to its board goes through Do,
// which is the room's single mutual-exclusion boundary.
type Room struct {
	ID   string
	Type model.RoomType

	passwordHash string
	mx           *sync.Mutex
	board        *board.Board
}

func newRoom(id string, roomType model.RoomType, passwordHash string) *Room {
	return &Room{
		ID:           id,
		Type:         roomType,
		passwordHash: passwordHash,
		mx:           &sync.Mutex{},
		board:        board.New(roomType),
	}
}

// Do runs fn with exclusive access to the room's board.
func (r *Room) Do(fn func(b *board.Board)) {
	r.mx.Lock()
	defer r.mx.Unlock()
	fn(r.board)
}

type RoomInfo struct {
	ID       string         `json:"id"`
	Type     model.RoomType `json:"roomType"`
	Members  int            `json:"members"`
	Sessions int            `json:"sessions"`
}

type Config struct {
	Logger *zerolog.Logger

	// HashCost is the bcrypt cost for new private rooms. Zero means bcrypt.DefaultCost.
	HashCost int
}

// MemStore is the room registry. Its lock only guards the maps and is never
// held while a room lock is taken.
type MemStore struct {
	logger   zerolog.Logger
	hashCost int
	hash     func(password []byte, cost int) ([]byte, error)
	mx       *sync.Mutex
	db       map[string]*Room
	sessions map[string]map[string]model.Session
}

func NewMemStore(cfg Config) *MemStore {
	cost := cfg.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &MemStore{
		logger:   cfg.Logger.With().Str("component", "registry").Logger(),
		hashCost: cost,
		hash:     bcrypt.GenerateFromPassword,
		mx:       &sync.Mutex{},
		db:       make(map[string]*Room),
		sessions: make(map[string]map[string]model.Session),
	}
}

// GetOrCreate returns the room with the given id. Type and password only
// matter when the room does not exist yet. created reports whether a new
// room was made.
func (ms *MemStore) GetOrCreate(roomID string, roomType model.RoomType, password string) (*Room, bool, error) {
	if room, ok := ms.lookup(roomID); ok {
		return room, false, nil
	}
	if !roomType.Valid() {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidRoomType, roomType)
	}

	// hashing is slow, keep it outside the registry lock
	var hash string
	if roomType == model.RoomTypePrivate {
		if password == "" {
			return nil, false, fmt.Errorf("%w: password required for private room", ErrAccessDenied)
		}
		h, err := ms.hash([]byte(password), ms.hashCost)
		if err != nil {
			return nil, false, fmt.Errorf("cannot hash password: %w", err)
		}
		hash = string(h)
	}

	ms.mx.Lock()
	defer ms.mx.Unlock()

	// someone may have created it while we were hashing
	if room, ok := ms.db[roomID]; ok {
		return room, false, nil
	}
	room := newRoom(roomID, roomType, hash)
	ms.db[roomID] = room
	ms.sessions[roomID] = make(map[string]model.Session)
	ms.logger.Debug().
		Str("roomID", roomID).
		Str("type", string(roomType)).
		Msg("room created")
	return room, true, nil
}

func (ms *MemStore) lookup(roomID string) (*Room, bool) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	room, ok := ms.db[roomID]
	return room, ok
}

// CheckPassword verifies access to an existing room.
func (ms *MemStore) CheckPassword(room *Room, password string) error {
	if room.Type != model.RoomTypePrivate {
		return nil
	}
	if !checkPassword(room.passwordHash, password) {
		return fmt.Errorf("%w: wrong password", ErrAccessDenied)
	}
	return nil
}

func (ms *MemStore) GetRoom(roomID string) (*Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// UpdateSessions records the saved sessions of a room for the next snapshot.
func (ms *MemStore) UpdateSessions(roomID string, sessions map[string]model.Session) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if _, ok := ms.db[roomID]; !ok {
		return
	}
	ms.sessions[roomID] = maps.Clone(sessions)
}

// Records returns the durable view of every room.
func (ms *MemStore) Records() map[string]model.RoomRecord {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	records := make(map[string]model.RoomRecord, len(ms.db))
	for id, room := range ms.db {
		records[id] = model.RoomRecord{
			RoomType:     room.Type,
			PasswordHash: room.passwordHash,
			Sessions:     maps.Clone(ms.sessions[id]),
		}
	}
	return records
}

// Load seeds the registry from a snapshot. Existing rooms are left alone.
func (ms *MemStore) Load(records map[string]model.RoomRecord) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	for id, rec := range records {
		if _, ok := ms.db[id]; ok {
			continue
		}
		if !rec.RoomType.Valid() {
			ms.logger.Warn().Str("roomID", id).Str("type", string(rec.RoomType)).Msg("skipping room with invalid type")
			continue
		}
		if rec.RoomType == model.RoomTypePrivate && rec.PasswordHash == "" {
			ms.logger.Warn().Str("roomID", id).Msg("skipping private room without password hash")
			continue
		}
		room := newRoom(id, rec.RoomType, rec.PasswordHash)
		if rec.RoomType == model.RoomTypePublic {
			room.passwordHash = ""
		}
		room.board.SetSessions(rec.Sessions)
		ms.db[id] = room
		ms.sessions[id] = room.board.SessionRecords()
	}
	ms.logger.Info().Int("rooms", len(ms.db)).Msg("rooms restored")
}

// List summarizes all rooms ordered by id.
func (ms *MemStore) List() []RoomInfo {
	ms.mx.Lock()
	rooms := make([]*Room, 0, len(ms.db))
	for _, room := range ms.db {
		rooms = append(rooms, room)
	}
	ms.mx.Unlock()

	slices.SortFunc(rooms, func(a, b *Room) int { return strings.Compare(a.ID, b.ID) })

	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		info := RoomInfo{ID: room.ID, Type: room.Type}
		room.Do(func(b *board.Board) {
			info.Members = b.Len()
			info.Sessions = len(b.SessionRecords())
		})
		infos = append(infos, info)
	}
	return infos
}

func (ms *MemStore) Len() int {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	return len(ms.db)
}

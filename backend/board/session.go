package board

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/adwski/drawing-board/backend/model"
	"github.com/segmentio/ksuid"
)

const sessionNameLayout = "2006-01-02 15:04:05"

// SaveSession freezes the current elements into a new session.
// Committed elements come first in commit order, so loading rebuilds the same history.
func (b *Board) SaveSession(name string, now time.Time) model.Session {
	now = now.UTC()
	if strings.TrimSpace(name) == "" {
		name = "Session " + now.Format(sessionNameLayout)
	}
	s := model.Session{
		ID:        ksuid.New().String(),
		Name:      name,
		CreatedAt: now,
		Elements:  b.frozenElements(),
	}
	b.sessions[s.ID] = s
	return cloneSession(s)
}

// LoadSession replaces live content with the session's elements.
// The history is rebuilt from committed elements; redo starts empty.
func (b *Board) LoadSession(id string) (model.Session, error) {
	s, ok := b.sessions[id]
	if !ok {
		return model.Session{}, ErrSessionNotFound
	}
	b.Clear()
	for _, e := range s.Elements {
		c, ok := b.collections[e.Kind]
		if !ok || e.ID == "" {
			continue
		}
		if _, taken := b.locate(e.ID); taken {
			continue
		}
		e = e.Clone()
		if !e.Status.Valid() {
			e.Status = model.StatusInProgress
		}
		c.put(e)
		if e.Status == model.StatusCommitted {
			b.markCommitted(e.ID)
		}
	}
	return cloneSession(s), nil
}

// Sessions lists saved sessions, oldest first.
func (b *Board) Sessions() []model.SessionInfo {
	out := make([]model.SessionInfo, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, s.Info())
	}
	slices.SortFunc(out, func(a, b model.SessionInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// SessionRecords returns the sessions keyed by id for persistence.
// Stored sessions are never mutated, so the values can be shared.
func (b *Board) SessionRecords() map[string]model.Session {
	return maps.Clone(b.sessions)
}

// SetSessions replaces the saved sessions, used when restoring from a snapshot.
func (b *Board) SetSessions(sessions map[string]model.Session) {
	b.sessions = make(map[string]model.Session, len(sessions))
	for id, s := range sessions {
		s.ID = id
		b.sessions[id] = cloneSession(s)
	}
}

func (b *Board) frozenElements() []model.Element {
	out := make([]model.Element, 0)
	for _, id := range b.committed {
		if e, ok := b.Element(id); ok {
			out = append(out, e)
		}
	}
	for _, kind := range model.Kinds {
		for _, e := range b.collections[kind].list() {
			if !b.isCommitted(e.ID) {
				out = append(out, e)
			}
		}
	}
	return out
}

func cloneSession(s model.Session) model.Session {
	s.Elements = model.CloneElements(s.Elements)
	return s
}

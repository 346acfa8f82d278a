// Package board holds the authoritative state of a single room:
// drawing elements, commit history, redo stack, members and saved sessions.
//
// A Board does no I/O and is not safe for concurrent use.
// Callers serialize access per room.
package board

import (
	"errors"
	"slices"

	"github.com/adwski/drawing-board/backend/model"
)

var (
	ErrRejected        = errors.New("element rejected")
	ErrSessionNotFound = errors.New("session not found")
)

type redoEntry struct {
	id      string
	element model.Element
}

type Board struct {
	roomType    model.RoomType
	collections map[model.ElementKind]*collection
	committed   []string
	redo        []redoEntry
	sessions    map[string]model.Session
	members     map[string]*model.Participant
	joinOrder   []string
}

func New(roomType model.RoomType) *Board {
	b := &Board{
		roomType:    roomType,
		collections: make(map[model.ElementKind]*collection, len(model.Kinds)),
		sessions:    make(map[string]model.Session),
		members:     make(map[string]*model.Participant),
	}
	for _, kind := range model.Kinds {
		b.collections[kind] = newCollection()
	}
	return b
}

// Upsert inserts or replaces a path or shape.
// The element stays committed if its id is already in the history,
// otherwise it is in progress; only Commit adds to the history.
// An explicit in-progress status on a committed id takes it out of the history.
func (b *Board) Upsert(e model.Element) (model.Element, error) {
	if e.Kind != model.KindPath && e.Kind != model.KindShape {
		return model.Element{}, ErrRejected
	}
	if e.Status != "" && !e.Status.Valid() {
		return model.Element{}, ErrRejected
	}
	if err := b.admit(e); err != nil {
		return model.Element{}, err
	}
	e = e.WithKind(e.Kind).Clone()
	c := b.collections[e.Kind]
	if prev, ok := c.get(e.ID); ok && prev.Author != "" {
		e.Author = prev.Author
	}
	switch {
	case e.Status == model.StatusInProgress:
		b.uncommit(e.ID)
	case b.isCommitted(e.ID):
		e.Status = model.StatusCommitted
	default:
		e.Status = model.StatusInProgress
	}
	c.put(e)
	b.dropRedo(e.ID)
	return e.Clone(), nil
}

// Commit marks the element committed and appends it to the history.
// Any pending redo is discarded. Unknown ids are ignored.
func (b *Board) Commit(id string) (model.Element, bool) {
	kind, ok := b.locate(id)
	if !ok {
		return model.Element{}, false
	}
	c := b.collections[kind]
	e, _ := c.get(id)
	e.Status = model.StatusCommitted
	c.put(e)
	b.markCommitted(id)
	b.redo = nil
	return e.Clone(), true
}

// Add stores a text or image. Both are committed on arrival.
func (b *Board) Add(e model.Element) (model.Element, error) {
	if e.Kind != model.KindText && e.Kind != model.KindImage {
		return model.Element{}, ErrRejected
	}
	if err := b.admit(e); err != nil {
		return model.Element{}, err
	}
	e = e.WithKind(e.Kind).Clone()
	e.Status = model.StatusCommitted
	b.collections[e.Kind].put(e)
	b.markCommitted(e.ID)
	b.redo = nil
	return e.Clone(), nil
}

// Clear drops every element and the whole history. Sessions survive.
func (b *Board) Clear() {
	for _, c := range b.collections {
		c.reset()
	}
	b.committed = nil
	b.redo = nil
}

// Element looks up an element by id in any collection.
func (b *Board) Element(id string) (model.Element, bool) {
	kind, ok := b.locate(id)
	if !ok {
		return model.Element{}, false
	}
	e, _ := b.collections[kind].get(id)
	return e.Clone(), true
}

// Elements returns copies of a single collection in insertion order.
func (b *Board) Elements(kind model.ElementKind) []model.Element {
	c, ok := b.collections[kind]
	if !ok {
		return nil
	}
	return c.list()
}

// Committed returns the commit history, oldest first.
func (b *Board) Committed() []string {
	return slices.Clone(b.committed)
}

func (b *Board) RedoCount() int {
	return len(b.redo)
}

func (b *Board) Snapshot() model.RoomState {
	state := model.RoomState{
		Users:     b.Members(),
		Cursors:   make(map[string]model.Point),
		Paths:     b.Elements(model.KindPath),
		Shapes:    b.Elements(model.KindShape),
		Texts:     b.Elements(model.KindText),
		Images:    b.Elements(model.KindImage),
		RedoCount: len(b.redo),
		Sessions:  b.Sessions(),
		RoomType:  b.roomType,
	}
	for _, p := range state.Users {
		if p.Cursor != nil {
			state.Cursors[p.ID] = *p.Cursor
		}
	}
	return state
}

func (b *Board) admit(e model.Element) error {
	if e.ID == "" {
		return ErrRejected
	}
	if kind, ok := b.locate(e.ID); ok && kind != e.Kind {
		return ErrRejected
	}
	return nil
}

func (b *Board) locate(id string) (model.ElementKind, bool) {
	for _, kind := range model.Kinds {
		if _, ok := b.collections[kind].get(id); ok {
			return kind, true
		}
	}
	return "", false
}

func (b *Board) isCommitted(id string) bool {
	return slices.Contains(b.committed, id)
}

func (b *Board) markCommitted(id string) {
	if !b.isCommitted(id) {
		b.committed = append(b.committed, id)
	}
}

func (b *Board) uncommit(id string) {
	b.committed = slices.DeleteFunc(b.committed, func(c string) bool { return c == id })
}

// dropRedo keeps redo entries disjoint from live elements.
func (b *Board) dropRedo(id string) {
	b.redo = slices.DeleteFunc(b.redo, func(r redoEntry) bool { return r.id == id })
}

// collection keeps elements of one kind in insertion order.
type collection struct {
	order []string
	items map[string]model.Element
}

func newCollection() *collection {
	return &collection{items: make(map[string]model.Element)}
}

func (c *collection) get(id string) (model.Element, bool) {
	e, ok := c.items[id]
	return e, ok
}

func (c *collection) put(e model.Element) {
	if _, ok := c.items[e.ID]; !ok {
		c.order = append(c.order, e.ID)
	}
	c.items[e.ID] = e
}

func (c *collection) remove(id string) (model.Element, bool) {
	e, ok := c.items[id]
	if !ok {
		return model.Element{}, false
	}
	delete(c.items, id)
	c.order = slices.DeleteFunc(c.order, func(o string) bool { return o == id })
	return e, true
}

func (c *collection) list() []model.Element {
	out := make([]model.Element, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id].Clone())
	}
	return out
}

func (c *collection) reset() {
	c.order = nil
	c.items = make(map[string]model.Element)
}

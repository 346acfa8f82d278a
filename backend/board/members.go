package board

import (
	"slices"

	"github.com/adwski/drawing-board/backend/model"
)

// Palette holds the colors handed out to participants, in assignment order.
var Palette = [...]string{
	"#e74c3c", "#3498db", "#2ecc71", "#f39c12", "#9b59b6",
	"#1abc9c", "#e67e22", "#34495e", "#e84393", "#00cec9",
}

// Join registers a participant and assigns the first palette color
// nobody in the room is using. With a full palette colors repeat.
func (b *Board) Join(id, name string) model.Participant {
	if p, ok := b.members[id]; ok {
		p.Name = name
		return *p
	}
	p := &model.Participant{
		ID:    id,
		Name:  name,
		Color: b.nextColor(),
	}
	b.members[id] = p
	b.joinOrder = append(b.joinOrder, id)
	return *p
}

func (b *Board) Leave(id string) bool {
	if _, ok := b.members[id]; !ok {
		return false
	}
	delete(b.members, id)
	b.joinOrder = slices.DeleteFunc(b.joinOrder, func(m string) bool { return m == id })
	return true
}

func (b *Board) MoveCursor(id string, pos model.Point) bool {
	p, ok := b.members[id]
	if !ok {
		return false
	}
	p.Cursor = &pos
	return true
}

// Members returns participants in join order.
func (b *Board) Members() []model.Participant {
	out := make([]model.Participant, 0, len(b.joinOrder))
	for _, id := range b.joinOrder {
		p := *b.members[id]
		if p.Cursor != nil {
			c := *p.Cursor
			p.Cursor = &c
		}
		out = append(out, p)
	}
	return out
}

func (b *Board) Len() int {
	return len(b.members)
}

func (b *Board) nextColor() string {
	used := make(map[string]struct{}, len(b.members))
	for _, p := range b.members {
		used[p.Color] = struct{}{}
	}
	for _, c := range Palette {
		if _, ok := used[c]; !ok {
			return c
		}
	}
	return Palette[len(b.members)%len(Palette)]
}

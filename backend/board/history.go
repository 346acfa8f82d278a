package board

import "github.com/adwski/drawing-board/backend/model"

// Undo removes the most recently committed element, whoever committed it,
// and pushes it onto the redo stack.
func (b *Board) Undo() (model.Element, bool) {
	n := len(b.committed)
	if n == 0 {
		return model.Element{}, false
	}
	id := b.committed[n-1]
	b.committed = b.committed[:n-1]

	kind, ok := b.locate(id)
	if !ok {
		return model.Element{}, false
	}
	e, _ := b.collections[kind].remove(id)
	b.redo = append(b.redo, redoEntry{id: id, element: e.Clone()})
	return e, true
}

// Redo reinserts the most recently undone element as committed.
func (b *Board) Redo() (model.Element, bool) {
	n := len(b.redo)
	if n == 0 {
		return model.Element{}, false
	}
	entry := b.redo[n-1]
	b.redo = b.redo[:n-1]

	e := entry.element.Clone()
	e.Status = model.StatusCommitted
	c, ok := b.collections[e.Kind]
	if !ok {
		return model.Element{}, false
	}
	c.put(e)
	b.markCommitted(entry.id)
	return e.Clone(), true
}

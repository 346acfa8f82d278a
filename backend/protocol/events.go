package protocol

import "github.com/adwski/drawing-board/backend/model"

type WelcomePayload struct {
	ID       string         `json:"id"`
	RoomID   string         `json:"roomId"`
	RoomType model.RoomType `json:"roomType"`
	Color    string         `json:"color"`
}

type CursorPayload struct {
	ID       string      `json:"id"`
	Position model.Point `json:"position"`
}

type RedoCountPayload struct {
	RedoCount int `json:"redoCount"`
}

type SessionSavedPayload struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

type SessionLoadedPayload struct {
	SessionID string          `json:"sessionId"`
	Elements  []model.Element `json:"elements"`
}

type SessionListPayload struct {
	Sessions []model.SessionInfo `json:"sessions"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func Welcome(id, roomID string, roomType model.RoomType, color string) model.Event {
	return model.Event{
		Type:    TypeWelcome,
		Payload: WelcomePayload{ID: id, RoomID: roomID, RoomType: roomType, Color: color},
	}
}

func State(state model.RoomState) model.Event {
	return model.Event{Type: TypeState, Payload: state}
}

func CursorMoved(id string, pos model.Point) model.Event {
	return model.Event{Type: TypeCursor, Payload: CursorPayload{ID: id, Position: pos}}
}

// ElementChanged builds the delta event for an element: path:upsert,
// shape:upsert, text:add or image:add, keyed by the element kind.
func ElementChanged(e model.Element) model.Event {
	var typ string
	switch e.Kind {
	case model.KindPath:
		typ = TypePathUpsert
	case model.KindShape:
		typ = TypeShapeUpsert
	case model.KindText:
		typ = TypeTextAdd
	case model.KindImage:
		typ = TypeImageAdd
	}
	return model.Event{
		Type:    typ,
		Payload: map[string]model.Element{string(e.Kind): e},
	}
}

func RedoCount(n int) model.Event {
	return model.Event{Type: TypeRedoCount, Payload: RedoCountPayload{RedoCount: n}}
}

func Cleared() model.Event {
	return model.Event{Type: TypeClear, Payload: struct{}{}}
}

func SessionSaved(id, name string) model.Event {
	return model.Event{Type: TypeSessionSaved, Payload: SessionSavedPayload{SessionID: id, Name: name}}
}

func SessionLoaded(id string, elements []model.Element) model.Event {
	return model.Event{Type: TypeSessionLoaded, Payload: SessionLoadedPayload{SessionID: id, Elements: elements}}
}

func SessionList(sessions []model.SessionInfo) model.Event {
	return model.Event{Type: TypeSessionList, Payload: SessionListPayload{Sessions: sessions}}
}

func Error(err error) model.Event {
	return model.Event{Type: TypeError, Payload: ErrorPayload{Message: err.Error()}}
}

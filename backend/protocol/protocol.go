// Package protocol decodes inbound frames into commands and builds outbound events.
//
// Every frame is a JSON object {"type": <kind>, "payload": {...}}.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adwski/drawing-board/backend/model"
)

// Inbound kinds.
const (
	TypeJoin        = "join"
	TypeCursor      = "cursor"
	TypePathUpsert  = "path:upsert"
	TypePathCommit  = "path:commit"
	TypeShapeUpsert = "shape:upsert"
	TypeShapeCommit = "shape:commit"
	TypeTextAdd     = "text:add"
	TypeImageAdd    = "image:add"
	TypeUndo        = "undo"
	TypeRedo        = "redo"
	TypeClear       = "clear"
	TypeSaveSession = "save-session"
	TypeLoadSession = "load-session"
)

// Outbound-only kinds.
const (
	TypeWelcome       = "welcome"
	TypeState         = "state"
	TypeRedoCount     = "redo-count"
	TypeSessionSaved  = "session-saved"
	TypeSessionLoaded = "session-loaded"
	TypeSessionList   = "session-list"
	TypeError         = "error"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrMissingType = errors.New("missing message type")
	ErrUnknownType = errors.New("unknown message type")
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Join struct {
	Name     string         `json:"name"`
	Color    string         `json:"color,omitempty"`
	RoomID   string         `json:"roomId,omitempty"`
	RoomType model.RoomType `json:"roomType,omitempty"`
	Password string         `json:"password,omitempty"`
}

// Command is a decoded inbound frame. Only the fields of its Type are set.
type Command struct {
	Type string

	Join      *Join
	Position  *model.Point
	Element   *model.Element
	ID        string
	Name      string
	SessionID string
}

// Decode parses a frame. For a well-formed frame of an unrecognized kind it
// returns the command with Type set and ErrUnknownType.
func Decode(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if env.Type == "" {
		return Command{}, ErrMissingType
	}

	cmd := Command{Type: env.Type}
	var err error
	switch env.Type {
	case TypeJoin:
		cmd.Join = &Join{}
		err = decodePayload(env.Payload, cmd.Join)

	case TypeCursor:
		var p struct {
			Position *model.Point `json:"position"`
		}
		if err = decodePayload(env.Payload, &p); err == nil && p.Position == nil {
			err = fmt.Errorf("%w: position is required", ErrMalformed)
		}
		cmd.Position = p.Position

	case TypePathUpsert:
		cmd.Element, err = decodeElement(env.Payload, model.KindPath)
	case TypeShapeUpsert:
		cmd.Element, err = decodeElement(env.Payload, model.KindShape)
	case TypeTextAdd:
		cmd.Element, err = decodeElement(env.Payload, model.KindText)
	case TypeImageAdd:
		cmd.Element, err = decodeElement(env.Payload, model.KindImage)

	case TypePathCommit, TypeShapeCommit:
		var p struct {
			ID string `json:"id"`
		}
		if err = decodePayload(env.Payload, &p); err == nil && p.ID == "" {
			err = fmt.Errorf("%w: id is required", ErrMalformed)
		}
		cmd.ID = p.ID

	case TypeUndo, TypeRedo, TypeClear:

	case TypeSaveSession:
		var p struct {
			Name string `json:"name"`
		}
		err = decodePayload(env.Payload, &p)
		cmd.Name = p.Name

	case TypeLoadSession:
		var p struct {
			SessionID string `json:"sessionId"`
		}
		if err = decodePayload(env.Payload, &p); err == nil && p.SessionID == "" {
			err = fmt.Errorf("%w: sessionId is required", ErrMalformed)
		}
		cmd.SessionID = p.SessionID

	default:
		return cmd, ErrUnknownType
	}
	if err != nil {
		return Command{}, err
	}
	return cmd, nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}

// decodeElement reads {"<kind>": {...}} and tags the element with kind.
// The body may be sent nested under the kind key or inline.
func decodeElement(raw json.RawMessage, kind model.ElementKind) (*model.Element, error) {
	var p map[string]json.RawMessage
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	body, ok := p[string(kind)]
	if !ok || string(body) == "null" {
		return nil, fmt.Errorf("%w: %s is required", ErrMalformed, kind)
	}

	var e model.Element
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if !hasBody(e, kind) {
		if err := unmarshalBody(body, &e, kind); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
	}
	e = e.WithKind(kind)
	return &e, nil
}

func hasBody(e model.Element, kind model.ElementKind) bool {
	switch kind {
	case model.KindPath:
		return e.Path != nil
	case model.KindShape:
		return e.Shape != nil
	case model.KindText:
		return e.Text != nil
	case model.KindImage:
		return e.Image != nil
	}
	return false
}

// unmarshalBody reads variant fields sent inline next to id and status.
func unmarshalBody(body []byte, e *model.Element, kind model.ElementKind) error {
	switch kind {
	case model.KindPath:
		e.Path = &model.Path{}
		return json.Unmarshal(body, e.Path)
	case model.KindShape:
		e.Shape = &model.Shape{}
		return json.Unmarshal(body, e.Shape)
	case model.KindText:
		e.Text = &model.Text{}
		return json.Unmarshal(body, e.Text)
	case model.KindImage:
		e.Image = &model.Image{}
		return json.Unmarshal(body, e.Image)
	}
	return nil
}

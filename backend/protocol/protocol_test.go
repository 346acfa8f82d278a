package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adwski/drawing-board/backend/model"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
		check   func(t *testing.T, cmd Command)
	}{
		{
			name:    "not json",
			data:    "not json",
			wantErr: ErrMalformed,
		},
		{
			name:    "missing type",
			data:    `{"payload":{}}`,
			wantErr: ErrMissingType,
		},
		{
			name:    "unknown type",
			data:    `{"type":"dance"}`,
			wantErr: ErrUnknownType,
			check: func(t *testing.T, cmd Command) {
				assert.Equal(t, "dance", cmd.Type)
			},
		},
		{
			name: "join",
			data: `{"type":"join","payload":{"name":"Alice","color":"#fff","roomId":"secret","roomType":"private","password":"x"}}`,
			check: func(t *testing.T, cmd Command) {
				require.NotNil(t, cmd.Join)
				assert.Equal(t, Join{
					Name:     "Alice",
					Color:    "#fff",
					RoomID:   "secret",
					RoomType: model.RoomTypePrivate,
					Password: "x",
				}, *cmd.Join)
			},
		},
		{
			name: "join without payload",
			data: `{"type":"join"}`,
			check: func(t *testing.T, cmd Command) {
				require.NotNil(t, cmd.Join)
				assert.Equal(t, Join{}, *cmd.Join)
			},
		},
		{
			name: "cursor",
			data: `{"type":"cursor","payload":{"position":{"x":1.5,"y":2}}}`,
			check: func(t *testing.T, cmd Command) {
				assert.Equal(t, &model.Point{X: 1.5, Y: 2}, cmd.Position)
			},
		},
		{
			name:    "cursor without position",
			data:    `{"type":"cursor","payload":{}}`,
			wantErr: ErrMalformed,
		},
		{
			name: "path upsert nested body",
			data: `{"type":"path:upsert","payload":{"path":{"id":"p1","kind":"shape","path":{"points":[{"x":1,"y":1}],"color":"#000","width":3}}}}`,
			check: func(t *testing.T, cmd Command) {
				require.NotNil(t, cmd.Element)
				assert.Equal(t, model.Element{
					ID:   "p1",
					Kind: model.KindPath,
					Path: &model.Path{Points: []model.Point{{X: 1, Y: 1}}, Color: "#000", Width: 3},
				}, *cmd.Element)
			},
		},
		{
			name: "path upsert inline body with status",
			data: `{"type":"path:upsert","payload":{"path":{"id":"p1","status":"in-progress","points":[{"x":2,"y":3}],"color":"#abc","width":1}}}`,
			check: func(t *testing.T, cmd Command) {
				require.NotNil(t, cmd.Element)
				assert.Equal(t, model.StatusInProgress, cmd.Element.Status)
				require.NotNil(t, cmd.Element.Path)
				assert.Equal(t, []model.Point{{X: 2, Y: 3}}, cmd.Element.Path.Points)
				assert.Equal(t, "#abc", cmd.Element.Path.Color)
			},
		},
		{
			name: "shape upsert inline",
			data: `{"type":"shape:upsert","payload":{"shape":{"id":"s1","type":"circle","start":{"x":0,"y":0},"end":{"x":4,"y":4},"filled":true}}}`,
			check: func(t *testing.T, cmd Command) {
				require.NotNil(t, cmd.Element)
				assert.Equal(t, model.KindShape, cmd.Element.Kind)
				require.NotNil(t, cmd.Element.Shape)
				assert.Equal(t, model.ShapeCircle, cmd.Element.Shape.Type)
				assert.True(t, cmd.Element.Shape.Filled)
			},
		},
		{
			name: "text add",
			data: `{"type":"text:add","payload":{"text":{"id":"t1","text":{"content":"hi","position":{"x":5,"y":6}}}}}`,
			check: func(t *testing.T, cmd Command) {
				require.NotNil(t, cmd.Element)
				assert.Equal(t, model.KindText, cmd.Element.Kind)
				assert.Equal(t, "hi", cmd.Element.Text.Content)
				assert.Nil(t, cmd.Element.Path)
			},
		},
		{
			name: "image add",
			data: `{"type":"image:add","payload":{"image":{"id":"i1","width":10,"height":20,"data":"data:image/png;base64,AA"}}}`,
			check: func(t *testing.T, cmd Command) {
				require.NotNil(t, cmd.Element)
				assert.Equal(t, model.KindImage, cmd.Element.Kind)
				assert.Equal(t, 20.0, cmd.Element.Image.Height)
			},
		},
		{
			name:    "element body missing",
			data:    `{"type":"shape:upsert","payload":{"path":{"id":"p1"}}}`,
			wantErr: ErrMalformed,
		},
		{
			name: "commit",
			data: `{"type":"shape:commit","payload":{"id":"s1"}}`,
			check: func(t *testing.T, cmd Command) {
				assert.Equal(t, "s1", cmd.ID)
			},
		},
		{
			name:    "commit without id",
			data:    `{"type":"path:commit","payload":{}}`,
			wantErr: ErrMalformed,
		},
		{
			name: "undo without payload",
			data: `{"type":"undo"}`,
			check: func(t *testing.T, cmd Command) {
				assert.Equal(t, TypeUndo, cmd.Type)
			},
		},
		{
			name: "save session",
			data: `{"type":"save-session","payload":{"name":"v1"}}`,
			check: func(t *testing.T, cmd Command) {
				assert.Equal(t, "v1", cmd.Name)
			},
		},
		{
			name: "load session",
			data: `{"type":"load-session","payload":{"sessionId":"abc"}}`,
			check: func(t *testing.T, cmd Command) {
				assert.Equal(t, "abc", cmd.SessionID)
			},
		},
		{
			name:    "load session without id",
			data:    `{"type":"load-session","payload":{}}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "payload of wrong shape",
			data:    `{"type":"save-session","payload":{"name":42}}`,
			wantErr: ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Decode([]byte(tt.data))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			if tt.check != nil {
				tt.check(t, cmd)
			}
		})
	}
}

func TestElementChanged(t *testing.T) {
	tests := []struct {
		kind     model.ElementKind
		wantType string
	}{
		{kind: model.KindPath, wantType: TypePathUpsert},
		{kind: model.KindShape, wantType: TypeShapeUpsert},
		{kind: model.KindText, wantType: TypeTextAdd},
		{kind: model.KindImage, wantType: TypeImageAdd},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e := model.Element{ID: "x", Kind: tt.kind}.WithKind(tt.kind)
			ev := ElementChanged(e)
			assert.Equal(t, tt.wantType, ev.Type)

			b, err := json.Marshal(ev)
			require.NoError(t, err)
			var decoded struct {
				Type    string                   `json:"type"`
				Payload map[string]model.Element `json:"payload"`
			}
			require.NoError(t, json.Unmarshal(b, &decoded))
			assert.Equal(t, tt.kind, decoded.Payload[string(tt.kind)].Kind)
		})
	}
}

func TestErrorEvent(t *testing.T) {
	b, err := json.Marshal(Error(errors.New("access denied")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","payload":{"message":"access denied"}}`, string(b))
}

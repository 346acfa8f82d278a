package model

import "slices"

type ElementKind string

const (
	KindPath  ElementKind = "path"
	KindShape ElementKind = "shape"
	KindText  ElementKind = "text"
	KindImage ElementKind = "image"
)

// Kinds lists every element kind in canonical order.
var Kinds = []ElementKind{KindPath, KindShape, KindText, KindImage}

func (k ElementKind) Valid() bool {
	return slices.Contains(Kinds, k)
}

type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusCommitted  Status = "committed"
)

func (s Status) Valid() bool {
	return s == StatusInProgress || s == StatusCommitted
}

type ShapeType string

const (
	ShapeRectangle ShapeType = "rectangle"
	ShapeCircle    ShapeType = "circle"
	ShapeTriangle  ShapeType = "triangle"
	ShapeLine      ShapeType = "line"
)

type Path struct {
	Points []Point `json:"points"`
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
}

type Shape struct {
	Type      ShapeType `json:"type"`
	Start     Point     `json:"start"`
	End       Point     `json:"end"`
	Color     string    `json:"color"`
	Width     float64   `json:"width"`
	Filled    bool      `json:"filled"`
	FillColor string    `json:"fillColor,omitempty"`
}

type Text struct {
	Position   Point   `json:"position"`
	Content    string  `json:"content"`
	Color      string  `json:"color"`
	FontSize   float64 `json:"fontSize"`
	FontFamily string  `json:"fontFamily,omitempty"`
}

type Image struct {
	Position Point   `json:"position"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Data     string  `json:"data"`
}

// Element is a drawing element. Kind selects which body is set;
// the other bodies are always nil.
type Element struct {
	ID     string      `json:"id"`
	Kind   ElementKind `json:"kind"`
	Author string      `json:"authorId,omitempty"`
	Status Status      `json:"status,omitempty"`

	Path  *Path  `json:"path,omitempty"`
	Shape *Shape `json:"shape,omitempty"`
	Text  *Text  `json:"text,omitempty"`
	Image *Image `json:"image,omitempty"`
}

// WithKind returns a copy tagged with kind, keeping only the matching body.
// A missing body is replaced by an empty one.
func (e Element) WithKind(kind ElementKind) Element {
	out := Element{ID: e.ID, Kind: kind, Author: e.Author, Status: e.Status}
	switch kind {
	case KindPath:
		out.Path = e.Path
		if out.Path == nil {
			out.Path = &Path{}
		}
	case KindShape:
		out.Shape = e.Shape
		if out.Shape == nil {
			out.Shape = &Shape{}
		}
	case KindText:
		out.Text = e.Text
		if out.Text == nil {
			out.Text = &Text{}
		}
	case KindImage:
		out.Image = e.Image
		if out.Image == nil {
			out.Image = &Image{}
		}
	}
	return out
}

// Clone returns a deep copy.
func (e Element) Clone() Element {
	out := e
	if e.Path != nil {
		p := *e.Path
		p.Points = slices.Clone(e.Path.Points)
		out.Path = &p
	}
	if e.Shape != nil {
		s := *e.Shape
		out.Shape = &s
	}
	if e.Text != nil {
		t := *e.Text
		out.Text = &t
	}
	if e.Image != nil {
		i := *e.Image
		out.Image = &i
	}
	return out
}

func CloneElements(elements []Element) []Element {
	if elements == nil {
		return nil
	}
	out := make([]Element, len(elements))
	for i := range elements {
		out[i] = elements[i].Clone()
	}
	return out
}

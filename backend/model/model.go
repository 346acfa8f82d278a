package model

import "time"

const defaultTXBufferSize = 256

type RoomType string

const (
	RoomTypePublic  RoomType = "public"
	RoomTypePrivate RoomType = "private"
)

func (t RoomType) Valid() bool {
	return t == RoomTypePublic || t == RoomTypePrivate
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	Cursor *Point `json:"cursor,omitempty"`
}

// Session is a named frozen copy of a room's elements.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Elements  []Element `json:"elements"`
}

type SessionInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s Session) Info() SessionInfo {
	return SessionInfo{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt}
}

// RoomRecord is the durable part of a room: everything that survives a restart.
type RoomRecord struct {
	RoomType     RoomType           `json:"roomType"`
	PasswordHash string             `json:"passwordHash,omitempty"`
	Sessions     map[string]Session `json:"sessions"`
}

// RoomState is the full authoritative view of a room sent to its members.
type RoomState struct {
	Users     []Participant    `json:"users"`
	Cursors   map[string]Point `json:"cursors"`
	Paths     []Element        `json:"paths"`
	Shapes    []Element        `json:"shapes"`
	Texts     []Element        `json:"texts"`
	Images    []Element        `json:"images"`
	RedoCount int              `json:"redoCount"`
	Sessions  []SessionInfo    `json:"sessions"`
	RoomType  RoomType         `json:"roomType"`
}

// Event is an outbound message. Type is the kind discriminator.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Wire connects a transport session with the gateway.
// RX carries raw inbound frames, TX carries outbound events.
type Wire struct {
	RX chan []byte
	TX chan Event
}

func NewWire() Wire {
	return Wire{
		RX: make(chan []byte),
		TX: make(chan Event, defaultTXBufferSize),
	}
}

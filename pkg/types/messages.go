// Package types holds the wire messages shared by both transports. Field
// names follow the JSON text protocol; the binary protocol carries the same
// fields.
package types

import "encoding/json"

type PacketType string

// Client -> Server
const (
	PacketHandshake        PacketType = "Handshake"
	PacketDisconnect       PacketType = "Disconnect"
	PacketKeyConfigUpdate  PacketType = "KeyConfigUpdate"
	PacketTableStateUpdate PacketType = "TableStateUpdate"
	PacketPlayerAction     PacketType = "PlayerAction"
)

// Server -> Client
const (
	PacketHandshakeResponse    PacketType = "HandshakeResponse"
	PacketDisconnectResponse   PacketType = "DisconnectResponse"
	PacketKeyConfigResponse    PacketType = "KeyConfigResponse"
	PacketTableStateResponse   PacketType = "TableStateResponse"
	PacketPlayerActionResponse PacketType = "PlayerActionResponse"
	PacketErrorResponse        PacketType = "ErrorResponse"
	PacketTickNotice           PacketType = "TickNotice"
)

type Message interface {
	PacketType() PacketType
}

// Request is the closed set of client packets. Only types in this package
// implement it.
type Request interface {
	Message
	Head() Header
	isRequest()
}

// Header identifies the sender on every request.
type Header struct {
	ClientID  string `json:"clientId"`
	SessionID string `json:"sessionId"`
}

func (h Header) Head() Header { return h }

type Handshake struct {
	Header
	GameID     string `json:"gameId,omitempty"`
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
}

type Disconnect struct {
	Header
}

type KeyConfigUpdate struct {
	Header
	PlayerID  string          `json:"playerId"`
	KeyConfig json.RawMessage `json:"keyConfig"`
}

// Table commands carried by TableStateUpdate.
const (
	TableSit   = "sit"
	TableLeave = "leave"
	TableStart = "start"
	TableStop  = "stop"
	TableReset = "reset"
)

type TableStateUpdate struct {
	Header
	Command string `json:"command"`
	SeatID  int    `json:"seatId"`
}

type PlayerAction struct {
	Header
	InitiatingSeatID int             `json:"initiatingSeatId"`
	TargetSeatID     int             `json:"targetSeatId"`
	ActionType       string          `json:"actionType"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

func (Handshake) PacketType() PacketType        { return PacketHandshake }
func (Disconnect) PacketType() PacketType       { return PacketDisconnect }
func (KeyConfigUpdate) PacketType() PacketType  { return PacketKeyConfigUpdate }
func (TableStateUpdate) PacketType() PacketType { return PacketTableStateUpdate }
func (PlayerAction) PacketType() PacketType     { return PacketPlayerAction }

func (Handshake) isRequest()        {}
func (Disconnect) isRequest()       {}
func (KeyConfigUpdate) isRequest()  {}
func (TableStateUpdate) isRequest() {}
func (PlayerAction) isRequest()     {}

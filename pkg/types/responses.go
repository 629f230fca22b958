package types

// ResponseHeader is stamped on every server packet sent in reply to a
// request.
type ResponseHeader struct {
	ServerID        string `json:"serverId"`
	ServerTimestamp int64  `json:"serverTimestamp"`
	SessionID       string `json:"sessionId,omitempty"`
	GameID          string `json:"gameId,omitempty"`
}

type HandshakeResponse struct {
	ResponseHeader
	Connected bool   `json:"connected"`
	PlayerID  string `json:"playerId"`
}

type DisconnectResponse struct {
	ResponseHeader
	Connected bool `json:"connected"`
}

type KeyConfigResponse struct {
	ResponseHeader
	Success  bool   `json:"success"`
	PlayerID string `json:"playerId"`
}

type TableStateResponse struct {
	ResponseHeader
	Success    bool   `json:"success"`
	Command    string `json:"command"`
	SeatID     int    `json:"seatId"`
	ServerTick uint64 `json:"serverTick"`
	Seed       int64  `json:"seed,omitempty"`
}

type PlayerActionResponse struct {
	ResponseHeader
	Success    bool   `json:"success"`
	ServerTick uint64 `json:"serverTick"`
}

type ErrorResponse struct {
	ResponseHeader
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// TickNotice is pushed to every connection following a game, once per tick.
type TickNotice struct {
	GameID     string `json:"gameId"`
	ServerTick uint64 `json:"serverTick"`
	ServerID   string `json:"serverId"`
}

func (HandshakeResponse) PacketType() PacketType    { return PacketHandshakeResponse }
func (DisconnectResponse) PacketType() PacketType   { return PacketDisconnectResponse }
func (KeyConfigResponse) PacketType() PacketType    { return PacketKeyConfigResponse }
func (TableStateResponse) PacketType() PacketType   { return PacketTableStateResponse }
func (PlayerActionResponse) PacketType() PacketType { return PacketPlayerActionResponse }
func (ErrorResponse) PacketType() PacketType        { return PacketErrorResponse }
func (TickNotice) PacketType() PacketType           { return PacketTickNotice }

package types

import "encoding/json"

// Envelope is the text transport frame in both directions.
type Envelope struct {
	PacketType string          `json:"packetType"`
	Payload    json.RawMessage `json:"payload"`
}

package protocol

import (
	"encoding/json"
	"errors"

	itypes "github.com/blakbro2k/YipeeWebServer-sub000/internal/types"
	"github.com/blakbro2k/YipeeWebServer-sub000/pkg/types"
)

// DecodeText parses a {packetType, payload} envelope into the request named
// by packetType.
func DecodeText(data []byte) (types.Request, error) {
	var env itypes.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, DecodeError(err)
	}
	if env.PacketType == "" {
		return nil, DecodeError(errors.New("missing packetType"))
	}

	switch types.PacketType(env.PacketType) {
	case types.PacketHandshake:
		return decodePayload[types.Handshake](env.Payload)
	case types.PacketDisconnect:
		return decodePayload[types.Disconnect](env.Payload)
	case types.PacketKeyConfigUpdate:
		return decodePayload[types.KeyConfigUpdate](env.Payload)
	case types.PacketTableStateUpdate:
		return decodePayload[types.TableStateUpdate](env.Payload)
	case types.PacketPlayerAction:
		return decodePayload[types.PlayerAction](env.Payload)
	default:
		return nil, UnknownPacket(env.PacketType)
	}
}

func decodePayload[T types.Request](payload json.RawMessage) (types.Request, error) {
	var req T
	if len(payload) == 0 || string(payload) == "null" {
		return req, nil
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, DecodeError(err)
	}
	return req, nil
}

// EncodeText wraps msg in an envelope.
func EncodeText(msg types.Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(itypes.Envelope{PacketType: string(msg.PacketType()), Payload: payload})
}

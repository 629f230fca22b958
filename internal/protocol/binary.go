package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/blakbro2k/YipeeWebServer-sub000/pkg/types"
)

// Kind is the packet-kind byte that follows the length prefix of a binary
// frame.
type Kind byte

const (
	KindHandshake        Kind = 1
	KindDisconnect       Kind = 2
	KindKeyConfigUpdate  Kind = 3
	KindTableStateUpdate Kind = 4
	KindPlayerAction     Kind = 5

	KindHandshakeResponse    Kind = 11
	KindDisconnectResponse   Kind = 12
	KindKeyConfigResponse    Kind = 13
	KindTableStateResponse   Kind = 14
	KindPlayerActionResponse Kind = 15
	KindErrorResponse        Kind = 20
	KindTickNotice           Kind = 21
)

const DefaultMaxFrameBytes = 64 << 10

// Oversized frames up to maxSkipFactor times the limit are skipped; anything
// larger ends the stream.
const maxSkipFactor = 4

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

var kinds = map[types.PacketType]Kind{
	types.PacketHandshake:            KindHandshake,
	types.PacketDisconnect:           KindDisconnect,
	types.PacketKeyConfigUpdate:      KindKeyConfigUpdate,
	types.PacketTableStateUpdate:     KindTableStateUpdate,
	types.PacketPlayerAction:         KindPlayerAction,
	types.PacketHandshakeResponse:    KindHandshakeResponse,
	types.PacketDisconnectResponse:   KindDisconnectResponse,
	types.PacketKeyConfigResponse:    KindKeyConfigResponse,
	types.PacketTableStateResponse:   KindTableStateResponse,
	types.PacketPlayerActionResponse: KindPlayerActionResponse,
	types.PacketErrorResponse:        KindErrorResponse,
	types.PacketTickNotice:           KindTickNotice,
}

// WriteFrame writes a 4-byte big-endian length, the kind byte and body.
func WriteFrame(w io.Writer, kind Kind, body []byte) error {
	buf := make([]byte, 5, 5+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)+1))
	buf[4] = byte(kind)
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame. A moderately oversized frame is skipped and
// reported as a decode error wrapping ErrFrameTooLarge so the caller can keep
// reading. A frame declaring far more is not read at all and returns a plain
// ErrFrameTooLarge; like any other non-decode error it means the stream is
// unusable.
func ReadFrame(r io.Reader, maxBytes int) (Kind, []byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return 0, nil, DecodeError(errors.New("empty frame"))
	}
	if maxBytes > 0 && int64(n) > int64(maxBytes) {
		if int64(n) > int64(maxBytes)*maxSkipFactor {
			return 0, nil, fmt.Errorf("%w: declared %d bytes, limit %d", ErrFrameTooLarge, n, maxBytes)
		}
		if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
			return 0, nil, err
		}
		return 0, nil, DecodeError(fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, maxBytes))
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(r, frame); err != nil {
		return 0, nil, err
	}
	return Kind(frame[0]), frame[1:], nil
}

// EncodeBinary returns the kind and protobuf-wire body for msg.
func EncodeBinary(msg types.Message) (Kind, []byte, error) {
	kind, ok := kinds[msg.PacketType()]
	if !ok {
		return 0, nil, fmt.Errorf("no binary kind for %s", msg.PacketType())
	}
	p := addressable(msg)
	if p == nil {
		return 0, nil, fmt.Errorf("unsupported message %T", msg)
	}
	var b []byte
	for _, f := range schema(p) {
		b = appendField(b, f)
	}
	return kind, b, nil
}

// DecodeBinary decodes any packet, request or response.
func DecodeBinary(kind Kind, body []byte) (types.Message, error) {
	p := newMessage(kind)
	if p == nil {
		return nil, UnknownPacket(fmt.Sprintf("kind %d", kind))
	}
	if err := consumeFields(body, schema(p)); err != nil {
		return nil, DecodeError(err)
	}
	return deref(p), nil
}

// DecodeBinaryRequest decodes a client packet; server packets are rejected.
func DecodeBinaryRequest(kind Kind, body []byte) (types.Request, error) {
	msg, err := DecodeBinary(kind, body)
	if err != nil {
		return nil, err
	}
	req, ok := msg.(types.Request)
	if !ok {
		return nil, UnknownPacket(string(msg.PacketType()))
	}
	return req, nil
}

type field struct {
	num protowire.Number
	ptr any
}

func headerFields(h *types.Header) []field {
	return []field{{1, &h.ClientID}, {2, &h.SessionID}}
}

func responseFields(h *types.ResponseHeader) []field {
	return []field{{1, &h.ServerID}, {2, &h.ServerTimestamp}, {3, &h.SessionID}, {4, &h.GameID}}
}

func schema(p any) []field {
	switch m := p.(type) {
	case *types.Handshake:
		return append(headerFields(&m.Header), field{3, &m.GameID}, field{4, &m.PlayerID}, field{5, &m.PlayerName})
	case *types.Disconnect:
		return headerFields(&m.Header)
	case *types.KeyConfigUpdate:
		return append(headerFields(&m.Header), field{3, &m.PlayerID}, field{4, &m.KeyConfig})
	case *types.TableStateUpdate:
		return append(headerFields(&m.Header), field{3, &m.Command}, field{4, &m.SeatID})
	case *types.PlayerAction:
		return append(headerFields(&m.Header),
			field{3, &m.InitiatingSeatID}, field{4, &m.TargetSeatID}, field{5, &m.ActionType}, field{6, &m.Payload})
	case *types.HandshakeResponse:
		return append(responseFields(&m.ResponseHeader), field{5, &m.Connected}, field{6, &m.PlayerID})
	case *types.DisconnectResponse:
		return append(responseFields(&m.ResponseHeader), field{5, &m.Connected})
	case *types.KeyConfigResponse:
		return append(responseFields(&m.ResponseHeader), field{5, &m.Success}, field{6, &m.PlayerID})
	case *types.TableStateResponse:
		return append(responseFields(&m.ResponseHeader),
			field{5, &m.Success}, field{6, &m.Command}, field{7, &m.SeatID}, field{8, &m.ServerTick}, field{9, &m.Seed})
	case *types.PlayerActionResponse:
		return append(responseFields(&m.ResponseHeader), field{5, &m.Success}, field{6, &m.ServerTick})
	case *types.ErrorResponse:
		return append(responseFields(&m.ResponseHeader), field{5, &m.Code}, field{6, &m.Message}, field{7, &m.Details})
	case *types.TickNotice:
		return []field{{1, &m.GameID}, {2, &m.ServerTick}, {3, &m.ServerID}}
	}
	return nil
}

func newMessage(kind Kind) any {
	switch kind {
	case KindHandshake:
		return &types.Handshake{}
	case KindDisconnect:
		return &types.Disconnect{}
	case KindKeyConfigUpdate:
		return &types.KeyConfigUpdate{}
	case KindTableStateUpdate:
		return &types.TableStateUpdate{}
	case KindPlayerAction:
		return &types.PlayerAction{}
	case KindHandshakeResponse:
		return &types.HandshakeResponse{}
	case KindDisconnectResponse:
		return &types.DisconnectResponse{}
	case KindKeyConfigResponse:
		return &types.KeyConfigResponse{}
	case KindTableStateResponse:
		return &types.TableStateResponse{}
	case KindPlayerActionResponse:
		return &types.PlayerActionResponse{}
	case KindErrorResponse:
		return &types.ErrorResponse{}
	case KindTickNotice:
		return &types.TickNotice{}
	}
	return nil
}

func addressable(msg types.Message) any {
	switch m := msg.(type) {
	case types.Handshake:
		return &m
	case types.Disconnect:
		return &m
	case types.KeyConfigUpdate:
		return &m
	case types.TableStateUpdate:
		return &m
	case types.PlayerAction:
		return &m
	case types.HandshakeResponse:
		return &m
	case types.DisconnectResponse:
		return &m
	case types.KeyConfigResponse:
		return &m
	case types.TableStateResponse:
		return &m
	case types.PlayerActionResponse:
		return &m
	case types.ErrorResponse:
		return &m
	case types.TickNotice:
		return &m
	}
	return nil
}

func deref(p any) types.Message {
	switch m := p.(type) {
	case *types.Handshake:
		return *m
	case *types.Disconnect:
		return *m
	case *types.KeyConfigUpdate:
		return *m
	case *types.TableStateUpdate:
		return *m
	case *types.PlayerAction:
		return *m
	case *types.HandshakeResponse:
		return *m
	case *types.DisconnectResponse:
		return *m
	case *types.KeyConfigResponse:
		return *m
	case *types.TableStateResponse:
		return *m
	case *types.PlayerActionResponse:
		return *m
	case *types.ErrorResponse:
		return *m
	case *types.TickNotice:
		return *m
	}
	return nil
}

// Zero values are omitted, as in proto3.
func appendField(b []byte, f field) []byte {
	switch p := f.ptr.(type) {
	case *string:
		if *p == "" {
			return b
		}
		b = protowire.AppendTag(b, f.num, protowire.BytesType)
		return protowire.AppendString(b, *p)
	case *json.RawMessage:
		if len(*p) == 0 {
			return b
		}
		b = protowire.AppendTag(b, f.num, protowire.BytesType)
		return protowire.AppendBytes(b, *p)
	case *int:
		if *p == 0 {
			return b
		}
		b = protowire.AppendTag(b, f.num, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(*p)))
	case *int64:
		if *p == 0 {
			return b
		}
		b = protowire.AppendTag(b, f.num, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeZigZag(*p))
	case *uint64:
		if *p == 0 {
			return b
		}
		b = protowire.AppendTag(b, f.num, protowire.VarintType)
		return protowire.AppendVarint(b, *p)
	case *bool:
		if !*p {
			return b
		}
		b = protowire.AppendTag(b, f.num, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeBool(*p))
	}
	return b
}

// consumeFields fills fields from body. Unknown field numbers are skipped.
func consumeFields(body []byte, fields []field) error {
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return protowire.ParseError(n)
		}
		body = body[n:]

		f, ok := lookup(fields, num)
		if !ok {
			n = protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return protowire.ParseError(n)
			}
			body = body[n:]
			continue
		}

		switch p := f.ptr.(type) {
		case *string, *json.RawMessage:
			if typ != protowire.BytesType {
				return fmt.Errorf("field %d: unexpected wire type %d", num, typ)
			}
			v, n := protowire.ConsumeBytes(body)
			if n < 0 {
				return protowire.ParseError(n)
			}
			body = body[n:]
			if s, ok := p.(*string); ok {
				*s = string(v)
			} else {
				*p.(*json.RawMessage) = append(json.RawMessage(nil), v...)
			}
		default:
			if typ != protowire.VarintType {
				return fmt.Errorf("field %d: unexpected wire type %d", num, typ)
			}
			v, n := protowire.ConsumeVarint(body)
			if n < 0 {
				return protowire.ParseError(n)
			}
			body = body[n:]
			switch q := p.(type) {
			case *int:
				*q = int(protowire.DecodeZigZag(v))
			case *int64:
				*q = protowire.DecodeZigZag(v)
			case *uint64:
				*q = v
			case *bool:
				*q = protowire.DecodeBool(v)
			}
		}
	}
	return nil
}

func lookup(fields []field, num protowire.Number) (field, bool) {
	for _, f := range fields {
		if f.num == num {
			return f, true
		}
	}
	return field{}, false
}

package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrBadPacket = errors.New("bad packet")

// Engine.IO v4 packet types.
type EnginePacketType byte

const (
	EngineOpen    EnginePacketType = '0'
	EngineClose   EnginePacketType = '1'
	EnginePing    EnginePacketType = '2'
	EnginePong    EnginePacketType = '3'
	EngineMessage EnginePacketType = '4'
	EngineUpgrade EnginePacketType = '5'
	EngineNoop    EnginePacketType = '6'
)

// Socket.IO v5 packet types, carried inside Engine.IO message packets.
type SocketPacketType byte

const (
	SocketConnect      SocketPacketType = '0'
	SocketDisconnect   SocketPacketType = '1'
	SocketEvent        SocketPacketType = '2'
	SocketAck          SocketPacketType = '3'
	SocketConnectError SocketPacketType = '4'
	SocketBinaryEvent  SocketPacketType = '5'
	SocketBinaryAck    SocketPacketType = '6'
)

type EnginePacket struct {
	Type EnginePacketType
	Data string
}

func ParseEnginePacket(msg []byte) (EnginePacket, error) {
	if len(msg) == 0 {
		return EnginePacket{}, fmt.Errorf("%w: empty engine packet", ErrBadPacket)
	}
	t := EnginePacketType(msg[0])
	if t < EngineOpen || t > EngineNoop {
		return EnginePacket{}, fmt.Errorf("%w: engine packet type %q", ErrBadPacket, msg[0])
	}
	return EnginePacket{Type: t, Data: string(msg[1:])}, nil
}

func (p EnginePacket) Encode() []byte {
	return append([]byte{byte(p.Type)}, p.Data...)
}

// OpenInfo is the handshake sent in the Engine.IO open packet.
type OpenInfo struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

func ParseOpenInfo(data string) (OpenInfo, error) {
	var info OpenInfo
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return OpenInfo{}, fmt.Errorf("%w: open packet: %v", ErrBadPacket, err)
	}
	return info, nil
}

// ReadTimeout is how long the server may stay silent before the connection
// is considered dead: one ping interval plus the ping timeout.
func (o OpenInfo) ReadTimeout() time.Duration {
	return time.Duration(o.PingInterval+o.PingTimeout) * time.Millisecond
}

type SocketPacket struct {
	Type      SocketPacketType
	Namespace string
	AckID     int
	HasAck    bool
	Data      json.RawMessage
}

// ParseSocketPacket parses the payload of an Engine.IO message packet.
func ParseSocketPacket(s string) (SocketPacket, error) {
	if s == "" {
		return SocketPacket{}, fmt.Errorf("%w: empty socket packet", ErrBadPacket)
	}
	p := SocketPacket{Type: SocketPacketType(s[0]), Namespace: "/"}
	if p.Type < SocketConnect || p.Type > SocketBinaryAck {
		return SocketPacket{}, fmt.Errorf("%w: socket packet type %q", ErrBadPacket, s[0])
	}
	rest := s[1:]

	if p.Type == SocketBinaryEvent || p.Type == SocketBinaryAck {
		i := strings.IndexByte(rest, '-')
		if i < 0 {
			return SocketPacket{}, fmt.Errorf("%w: binary packet without attachment count", ErrBadPacket)
		}
		rest = rest[i+1:]
	}

	if strings.HasPrefix(rest, "/") {
		i := strings.IndexByte(rest, ',')
		if i < 0 {
			p.Namespace, rest = rest, ""
		} else {
			p.Namespace, rest = rest[:i], rest[i+1:]
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return SocketPacket{}, fmt.Errorf("%w: ack id: %v", ErrBadPacket, err)
		}
		p.AckID, p.HasAck = id, true
		rest = rest[digits:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return SocketPacket{}, fmt.Errorf("%w: invalid JSON data", ErrBadPacket)
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// Encode renders the packet as an Engine.IO message.
func (p SocketPacket) Encode() []byte {
	var b strings.Builder
	b.WriteByte(byte(EngineMessage))
	b.WriteByte(byte(p.Type))
	if p.Namespace != "" && p.Namespace != "/" {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.HasAck {
		b.WriteString(strconv.Itoa(p.AckID))
	}
	b.Write(p.Data)
	return []byte(b.String())
}

// Event splits an EVENT packet's data into the event name and first argument.
func (p SocketPacket) Event() (string, json.RawMessage, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(p.Data, &args); err != nil || len(args) == 0 {
		return "", nil, fmt.Errorf("%w: event data must be a non-empty array", ErrBadPacket)
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name must be a string", ErrBadPacket)
	}
	if len(args) < 2 {
		return name, nil, nil
	}
	return name, args[1], nil
}

// ErrorMessage extracts the reason from a CONNECT_ERROR packet.
func (p SocketPacket) ErrorMessage() string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(p.Data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return string(p.Data)
}

package proto

import (
	"encoding/json"
	"fmt"

	"stronghold/server/internal/entity"
	"stronghold/server/internal/sim"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	// Type identifiers for outbound websocket payloads.
	typeCommandAck    = "commandAck"
	typeCommandReject = "commandReject"
	typeHeartbeat     = "heartbeat"
	typeState         = "state"
	typeKeyframe      = "keyframe"
	typeKeyframeNack  = "keyframeNack"
)

// Client message type identifiers.
const (
	TypeInput       = "input"
	TypeAttack      = "attack"
	TypeHarvest     = "harvest"
	TypeBuild       = "build"
	TypeHeartbeat   = "heartbeat"
	TypeKeyframeReq = "keyframeRequest"
)

// Exported aliases for outbound message type identifiers.
const (
	TypeState        = typeState
	TypeKeyframe     = typeKeyframe
	TypeKeyframeNack = typeKeyframeNack
)

// ClientMessage captures an inbound websocket message from the client.
type ClientMessage struct {
	Ver         int     `json:"ver,omitempty"`
	Type        string  `json:"type"`
	DX          float64 `json:"dx"`
	DY          float64 `json:"dy"`
	Facing      string  `json:"facing"`
	TargetID    string  `json:"targetId,omitempty"`
	TileX       int     `json:"tileX"`
	TileY       int     `json:"tileY"`
	Amount      int     `json:"amount,omitempty"`
	Building    string  `json:"building,omitempty"`
	SentAt      int64   `json:"sentAt"`
	Ack         *uint64 `json:"ack,omitempty"`
	KeyframeSeq *uint64 `json:"keyframeSeq,omitempty"`
	CommandSeq  *uint64 `json:"seq,omitempty"`
}

// DecodeClientMessage converts raw websocket payloads into a structured
// message, rejecting protocol versions the server does not speak.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	return msg, nil
}

// ClientCommand converts a websocket message into the structured simulation
// command it carries. Origin metadata is populated by the hub when the
// command is accepted for processing.
func ClientCommand(msg ClientMessage) (sim.Command, bool) {
	switch msg.Type {
	case TypeInput:
		return sim.Command{
			Type: sim.CommandMove,
			Move: &sim.MoveCommand{
				DX:     msg.DX,
				DY:     msg.DY,
				Facing: parseFacing(msg.Facing),
			},
		}, true
	case TypeAttack:
		return sim.Command{
			Type:   sim.CommandAttack,
			Attack: &sim.AttackCommand{TargetID: entity.ID(msg.TargetID)},
		}, true
	case TypeHarvest:
		return sim.Command{
			Type: sim.CommandHarvest,
			Harvest: &sim.HarvestCommand{
				TileX:  msg.TileX,
				TileY:  msg.TileY,
				Amount: msg.Amount,
			},
		}, true
	case TypeBuild:
		if msg.Building == "" {
			return sim.Command{}, false
		}
		return sim.Command{
			Type: sim.CommandBuild,
			Build: &sim.BuildCommand{
				Building: msg.Building,
				TileX:    msg.TileX,
				TileY:    msg.TileY,
			},
		}, true
	default:
		return sim.Command{}, false
	}
}

func parseFacing(value string) entity.Facing {
	switch entity.Facing(value) {
	case entity.FacingUp, entity.FacingDown, entity.FacingLeft, entity.FacingRight:
		return entity.Facing(value)
	default:
		return ""
	}
}

// CommandAck describes an acknowledgement of a processed command.
type CommandAck struct {
	Seq  uint64
	Tick uint64
}

// EncodeCommandAck renders a command acknowledgement response.
func EncodeCommandAck(msg CommandAck) ([]byte, error) {
	frame := struct {
		Ver  int    `json:"ver"`
		Type string `json:"type"`
		Seq  uint64 `json:"seq"`
		Tick uint64 `json:"tick,omitempty"`
	}{
		Ver:  Version,
		Type: typeCommandAck,
		Seq:  msg.Seq,
	}
	if msg.Tick > 0 {
		frame.Tick = msg.Tick
	}
	return json.Marshal(frame)
}

// CommandReject notifies the client that a command was refused.
type CommandReject struct {
	Seq    uint64
	Reason string
	Retry  bool
	Tick   uint64
}

// EncodeCommandReject renders a command rejection response.
func EncodeCommandReject(msg CommandReject) ([]byte, error) {
	frame := struct {
		Ver    int    `json:"ver"`
		Type   string `json:"type"`
		Seq    uint64 `json:"seq"`
		Reason string `json:"reason"`
		Retry  bool   `json:"retry,omitempty"`
		Tick   uint64 `json:"tick,omitempty"`
	}{
		Ver:    Version,
		Type:   typeCommandReject,
		Seq:    msg.Seq,
		Reason: msg.Reason,
	}
	if msg.Retry {
		frame.Retry = true
	}
	if msg.Tick > 0 {
		frame.Tick = msg.Tick
	}
	return json.Marshal(frame)
}

// Heartbeat echoes timing metadata back to the client.
type Heartbeat struct {
	ServerTime int64
	ClientTime int64
	RTTMillis  int64
}

// EncodeHeartbeat renders a heartbeat acknowledgement payload.
func EncodeHeartbeat(msg Heartbeat) ([]byte, error) {
	frame := struct {
		Ver        int    `json:"ver"`
		Type       string `json:"type"`
		ServerTime int64  `json:"serverTime"`
		ClientTime int64  `json:"clientTime"`
		RTTMillis  int64  `json:"rtt"`
	}{
		Ver:        Version,
		Type:       typeHeartbeat,
		ServerTime: msg.ServerTime,
		ClientTime: msg.ClientTime,
		RTTMillis:  msg.RTTMillis,
	}
	return json.Marshal(frame)
}

// StateSnapshotV1 captures the version 1 websocket state payload layout. The
// patch list is the per-tick diff stream; AckedSeq tells the client which of
// its inputs the server has folded in so prediction can drop them.
type StateSnapshotV1 struct {
	Ver              int             `json:"ver"`
	Type             string          `json:"type"`
	Tick             uint64          `json:"t"`
	Patches          []sim.Patch     `json:"patches"`
	AckedSeq         uint64          `json:"ackedSeq"`
	KeyframeSeq      uint64          `json:"keyframeSeq"`
	ServerTime       int64           `json:"serverTime"`
	Config           sim.WorldConfig `json:"config"`
	Resync           bool            `json:"resync,omitempty"`
	KeyframeInterval int             `json:"keyframeInterval,omitempty"`
}

// EncodeStateSnapshotV1 renders a versioned snapshot payload.
func EncodeStateSnapshotV1(msg StateSnapshotV1) ([]byte, error) {
	if msg.Type == "" {
		msg.Type = TypeState
	}
	msg.Ver = Version
	return json.Marshal(msg)
}

// JoinResponseV1 captures the version 1 join response layout.
type JoinResponseV1 struct {
	Ver              int             `json:"ver"`
	PlayerID         string          `json:"playerId"`
	HeroID           string          `json:"heroId"`
	Token            string          `json:"token"`
	Snapshot         sim.Snapshot    `json:"snapshot"`
	Config           sim.WorldConfig `json:"config"`
	MapName          string          `json:"mapName,omitempty"`
	KeyframeInterval int             `json:"keyframeInterval,omitempty"`
}

// EncodeJoinResponseV1 renders a versioned join response payload.
func EncodeJoinResponseV1(msg JoinResponseV1) ([]byte, error) {
	msg.Ver = Version
	return json.Marshal(msg)
}

// KeyframeSnapshotV1 captures the version 1 keyframe payload layout.
type KeyframeSnapshotV1 struct {
	Ver      int          `json:"ver"`
	Type     string       `json:"type"`
	Sequence uint64       `json:"sequence"`
	Tick     uint64       `json:"t"`
	Snapshot sim.Snapshot `json:"snapshot"`
}

// EncodeKeyframeSnapshotV1 renders a versioned keyframe payload.
func EncodeKeyframeSnapshotV1(msg KeyframeSnapshotV1) ([]byte, error) {
	if msg.Type == "" {
		msg.Type = TypeKeyframe
	}
	msg.Ver = Version
	return json.Marshal(msg)
}

// KeyframeNack tells the client a requested keyframe is no longer retained.
type KeyframeNack struct {
	Sequence uint64
	Oldest   uint64
	Newest   uint64
}

// EncodeKeyframeNack renders a keyframe nack payload.
func EncodeKeyframeNack(msg KeyframeNack) ([]byte, error) {
	frame := struct {
		Ver      int    `json:"ver"`
		Type     string `json:"type"`
		Sequence uint64 `json:"sequence"`
		Oldest   uint64 `json:"oldest,omitempty"`
		Newest   uint64 `json:"newest,omitempty"`
	}{
		Ver:      Version,
		Type:     typeKeyframeNack,
		Sequence: msg.Sequence,
		Oldest:   msg.Oldest,
		Newest:   msg.Newest,
	}
	return json.Marshal(frame)
}

package protocol

// SAFE_MTU is the upper bound, in bytes, of any single UDP payload this
// server emits. Callers must pre-fragment; Encode refuses to exceed it.
const SafeMTU = 1360

// PacketType is the one-byte tag following the 2-byte length prefix.
type PacketType byte

// Wire values copied from OpenTTD/src/network/core/udp.h's PacketUDPType:
// tags are fixed by the real protocol, not by declaration order here.
const (
	PacketClientFindServer   PacketType = 0
	PacketServerResponse     PacketType = 1
	packetClientDetailInfo   PacketType = 2 // unused wire slot, reserved by the original protocol
	packetServerDetailInfo   PacketType = 3 // unused wire slot, reserved by the original protocol
	PacketServerRegister     PacketType = 4
	PacketMasterAckRegister  PacketType = 5
	PacketClientGetList      PacketType = 6
	PacketMasterResponseList PacketType = 7
	PacketServerUnregister   PacketType = 8
	packetClientGetNewGRFs   PacketType = 9  // unused wire slot, reserved by the original protocol
	packetServerNewGRFs      PacketType = 10 // unused wire slot, reserved by the original protocol
	PacketMasterSessionKey   PacketType = 11
	packetEnd                PacketType = 12 // sentinel: first invalid tag
)

// lengthPrefixSize is the size, in bytes, of the framing length prefix.
const lengthPrefixSize = 2

// DaysTillBase biases the 16-bit day counts used by GameInfo versions < 3;
// it is the day number of 1920-01-01 in the proleptic Gregorian calendar.
const DaysTillBase = 365*1920 + 1920/4 - 1920/100 + 1920/400

// SLT is the Server List Type requested by CLIENT_GET_LIST.
type SLT byte

const (
	SLTIPv4 SLT = iota
	SLTIPv6
	SLTAutodetect
)

// Message is the decoded form of one inbound packet.
type Message struct {
	Type     PacketType
	Register *RegisterPayload
	Response *GameInfo
	GetList  *GetListPayload
}

// RegisterPayload carries both SERVER_REGISTER and SERVER_UNREGISTER bodies;
// HasKey is false and SessionKey is 0 for version-1 packets and for
// SERVER_UNREGISTER.
type RegisterPayload struct {
	Version    uint8
	Port       uint16
	SessionKey uint64
	HasKey     bool
}

// GetListPayload is the decoded body of CLIENT_GET_LIST.
type GetListPayload struct {
	Version uint8
	SLT     SLT
}

package protocol

// EncodeFindServer builds CLIENT_FIND_SERVER: empty payload.
func EncodeFindServer() ([]byte, error) {
	w := newWriter()
	w.u8(byte(PacketClientFindServer))
	return w.finish()
}

// EncodeSessionKey builds MASTER_SESSION_KEY: the 64-bit key including its
// token byte.
func EncodeSessionKey(sessionKeyWithToken uint64) ([]byte, error) {
	w := newWriter()
	w.u8(byte(PacketMasterSessionKey))
	w.u64(sessionKeyWithToken)
	return w.finish()
}

// EncodeAckRegister builds MASTER_ACK_REGISTER: empty payload.
func EncodeAckRegister() ([]byte, error) {
	w := newWriter()
	w.u8(byte(PacketMasterAckRegister))
	return w.finish()
}

// ServerListEntry is one record of a MASTER_RESPONSE_LIST fragment.
type ServerListEntry struct {
	IP   []byte // 4 bytes for IPv4, 16 for IPv6, network order
	Port uint16
}

// EncodeResponseList builds one MASTER_RESPONSE_LIST fragment: slt+1, count,
// then count packed-address+port records. The caller is responsible for
// pre-splitting entries into SafeMTU-sized chunks (see MaxListCount).
func EncodeResponseList(slt SLT, entries []ServerListEntry) ([]byte, error) {
	w := newWriter()
	w.u8(byte(PacketMasterResponseList))
	w.u8(byte(slt) + 1)
	w.u16(uint16(len(entries)))
	for _, e := range entries {
		w.raw(e.IP)
		w.u16(e.Port)
	}
	return w.finish()
}

// AddrLen returns the packed address length for a given SLT: 4 for IPv4,
// 16 for IPv6. SLTAutodetect has no fixed length and must be resolved by
// the caller before encoding.
func AddrLen(slt SLT) int {
	if slt == SLTIPv6 {
		return 16
	}
	return 4
}

// MaxListCount returns the maximum number of entries that fit in a single
// MASTER_RESPONSE_LIST fragment for the given SLT:
// (SAFE_MTU − 2 − 1 − 2 − 1) / (addr_len + 2).
func MaxListCount(slt SLT) int {
	return (SafeMTU - 2 - 1 - 2 - 1) / (AddrLen(slt) + 2)
}

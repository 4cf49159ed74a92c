package protocol

const welcomeString = "OpenTTDRegister"

// Decode parses one framed packet: 2-byte length, 1-byte type, payload.
// It enforces that the declared length matches len(buf) exactly and that
// the payload decoder consumes every remaining byte.
func Decode(buf []byte) (*Message, error) {
	if len(buf) < lengthPrefixSize+1 {
		return nil, CodeInvalidSize.Error()
	}

	r := newReader(buf)
	declared, _ := r.u16()
	if int(declared) != len(buf) {
		return nil, CodeInvalidSize.Error()
	}

	tb, _ := r.u8()
	typ := PacketType(tb)
	if typ >= packetEnd {
		return nil, CodeInvalidType.Error()
	}

	body := buf[lengthPrefixSize+1:]
	br := newReader(body)

	switch typ {
	case PacketServerRegister:
		p, err := decodeRegister(br)
		if err != nil {
			return nil, err
		}
		return &Message{Type: typ, Register: p}, nil
	case PacketServerUnregister:
		p, err := decodeUnregister(br)
		if err != nil {
			return nil, err
		}
		return &Message{Type: typ, Register: p}, nil
	case PacketServerResponse:
		info, err := decodeGameInfo(br)
		if err != nil {
			return nil, err
		}
		return &Message{Type: typ, Response: info}, nil
	case PacketClientGetList:
		p, err := decodeGetList(br)
		if err != nil {
			return nil, err
		}
		return &Message{Type: typ, GetList: p}, nil
	case PacketClientFindServer:
		if br.remaining() != 0 {
			return nil, CodeInvalidData.Error()
		}
		return &Message{Type: typ}, nil
	default:
		return nil, CodeInvalidType.Error()
	}
}

func decodeRegister(r *reader) (*RegisterPayload, error) {
	welcome, ok := r.cstring()
	if !ok || welcome != welcomeString {
		return nil, CodeInvalidData.Error()
	}

	version, ok := r.u8()
	if !ok || version < 1 || version > 2 {
		return nil, CodeInvalidData.Error()
	}

	port, ok := r.u16()
	if !ok {
		return nil, CodeInvalidData.Error()
	}

	p := &RegisterPayload{Version: version, Port: port}

	if version == 2 {
		key, ok := r.u64()
		if !ok {
			return nil, CodeInvalidData.Error()
		}
		p.SessionKey = key
		p.HasKey = true
	}

	if r.remaining() != 0 {
		return nil, CodeInvalidData.Error()
	}

	return p, nil
}

// decodeUnregister parses SERVER_UNREGISTER: version + port only, no
// welcome string and no session key regardless of version.
func decodeUnregister(r *reader) (*RegisterPayload, error) {
	version, ok := r.u8()
	if !ok || version < 1 || version > 2 {
		return nil, CodeInvalidData.Error()
	}

	port, ok := r.u16()
	if !ok {
		return nil, CodeInvalidData.Error()
	}

	if r.remaining() != 0 {
		return nil, CodeInvalidData.Error()
	}

	return &RegisterPayload{Version: version, Port: port}, nil
}

func decodeGetList(r *reader) (*GetListPayload, error) {
	version, ok := r.u8()
	if !ok || version < 1 || version > 2 {
		return nil, CodeInvalidData.Error()
	}

	p := &GetListPayload{Version: version, SLT: SLTIPv4}

	if version == 2 {
		slt, ok := r.u8()
		if !ok || slt > byte(SLTAutodetect) {
			return nil, CodeInvalidData.Error()
		}
		p.SLT = SLT(slt)
	}

	if r.remaining() != 0 {
		return nil, CodeInvalidData.Error()
	}

	return p, nil
}

func decodeGameInfo(r *reader) (*GameInfo, error) {
	version, ok := r.u8()
	if !ok || version < 1 || version > 4 {
		return nil, CodeInvalidData.Error()
	}

	g := &GameInfo{Version: version}

	if version >= 4 {
		grfCount, ok := r.u8()
		if !ok {
			return nil, CodeInvalidData.Error()
		}
		g.NewGRFs = make([]NewGRF, 0, grfCount)
		for i := uint8(0); i < grfCount; i++ {
			id, ok := r.u32()
			if !ok {
				return nil, CodeInvalidData.Error()
			}
			md5, ok := r.bytes(16)
			if !ok {
				return nil, CodeInvalidData.Error()
			}
			var grf NewGRF
			grf.GRFID = id
			copy(grf.MD5[:], md5)
			g.NewGRFs = append(g.NewGRFs, grf)
		}
	}

	if version >= 3 {
		gameDate, ok := r.u32()
		if !ok {
			return nil, CodeInvalidData.Error()
		}
		startDate, ok := r.u32()
		if !ok {
			return nil, CodeInvalidData.Error()
		}
		g.GameDate = int32(gameDate)
		g.StartDate = int32(startDate)
	}

	if version >= 2 {
		companiesMax, ok := r.u8()
		if !ok {
			return nil, CodeInvalidData.Error()
		}
		companiesOn, ok := r.u8()
		if !ok {
			return nil, CodeInvalidData.Error()
		}
		spectatorsMax, ok := r.u8()
		if !ok {
			return nil, CodeInvalidData.Error()
		}
		g.CompaniesMax = companiesMax
		g.CompaniesOn = companiesOn
		g.SpectatorsMax = spectatorsMax
	}

	var err error
	if g.Name, ok = r.cstring(); !ok {
		return nil, CodeInvalidData.Error()
	}
	if g.OpenTTDVersion, ok = r.cstring(); !ok {
		return nil, CodeInvalidData.Error()
	}

	lang, ok := r.u8()
	if !ok {
		return nil, CodeInvalidData.Error()
	}
	g.ServerLang = lang

	usePassword, ok := r.u8()
	if !ok {
		return nil, CodeInvalidData.Error()
	}
	g.Password = usePassword != 0

	clientsMax, ok := r.u8()
	if !ok {
		return nil, CodeInvalidData.Error()
	}
	clientsOn, ok := r.u8()
	if !ok {
		return nil, CodeInvalidData.Error()
	}
	spectatorsOn, ok := r.u8()
	if !ok {
		return nil, CodeInvalidData.Error()
	}
	g.ClientsMax = uint16(clientsMax)
	g.ClientsOn = uint16(clientsOn)
	g.SpectatorsOn = uint16(spectatorsOn)

	if version < 3 {
		gameDate, ok := r.u16()
		if !ok {
			return nil, CodeInvalidData.Error()
		}
		startDate, ok := r.u16()
		if !ok {
			return nil, CodeInvalidData.Error()
		}
		g.GameDate = int32(gameDate) + DaysTillBase
		g.StartDate = int32(startDate) + DaysTillBase
	}

	if g.MapName, err = requireCString(r); err != nil {
		return nil, err
	}
	if g.MapWidth, ok = r.u16(); !ok {
		return nil, CodeInvalidData.Error()
	}
	if g.MapHeight, ok = r.u16(); !ok {
		return nil, CodeInvalidData.Error()
	}

	mapSet, ok := r.u8()
	if !ok {
		return nil, CodeInvalidData.Error()
	}
	g.MapSet = mapSet

	dedicated, ok := r.u8()
	if !ok {
		return nil, CodeInvalidData.Error()
	}
	g.Dedicated = dedicated != 0

	if r.remaining() != 0 {
		return nil, CodeInvalidData.Error()
	}

	return g, nil
}

func requireCString(r *reader) (string, error) {
	s, ok := r.cstring()
	if !ok {
		return "", CodeInvalidData.Error()
	}
	return s, nil
}

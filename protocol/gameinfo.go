package protocol

// NewGRF identifies one loaded GRF by its 4-byte grf id and 16-byte MD5
// digest of the GRF file content. Opaque beyond that to this server.
type NewGRF struct {
	GRFID uint32
	MD5   [16]byte
}

// GameInfo is the decoded payload of SERVER_RESPONSE: everything a game
// server reports about itself when probed. Field names follow this
// server's own vocabulary (Name, OpenTTDVersion) where spec.md names them
// explicitly; everything else mirrors OpenTTD's wire field names.
type GameInfo struct {
	Version        uint8
	NewGRFs        []NewGRF
	GameDate       int32
	StartDate      int32
	Name           string // server_name
	OpenTTDVersion string // server_revision
	ServerLang     uint8
	Password       bool // use_password
	ClientsMax     uint16
	ClientsOn      uint16
	SpectatorsOn   uint16
	CompaniesMax   uint8
	CompaniesOn    uint8
	SpectatorsMax  uint8
	MapName        string
	MapWidth       uint16
	MapHeight      uint16
	MapSet         uint8 // landscape id: temperate/arctic/desert/toyland
	Dedicated      bool
}

// Valid reports whether the GameInfo carries the two fields the handler
// requires to accept a RESPONSE: a RESPONSE with name == "" or
// openttd_version == "" is rejected.
func (g *GameInfo) Valid() bool {
	return g != nil && g.Name != "" && g.OpenTTDVersion != ""
}

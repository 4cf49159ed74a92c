package source

import (
	liberr "github.com/nabbar/ottd-masterserver/errors"
)

const (
	// CodeNoProxyProtocol is NoProxyProtocol: a PROXY header was required
	// but absent, and no prior mapping exists for the socket address it
	// would have established.
	CodeNoProxyProtocol liberr.CodeError = liberr.MinPkgSource + iota
	// CodeMalformedHeader is a PROXY line that does not parse into its
	// six space-separated fields.
	CodeMalformedHeader
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgSource, message)
}

func message(code liberr.CodeError) string {
	switch code {
	case CodeNoProxyProtocol:
		return "PROXY header required but absent, and no prior mapping"
	case CodeMalformedHeader:
		return "malformed PROXY protocol header"
	default:
		return liberr.UnknownMessage
	}
}

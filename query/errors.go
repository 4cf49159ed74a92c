// Package query implements the per-(ip,port) probe tracker: at most one
// outstanding CLIENT_FIND_SERVER probe per address, with retry and timeout
// (component D).
package query

import (
	liberr "github.com/nabbar/ottd-masterserver/errors"
)

const (
	// CodeExhausted is informational: retries reached zero and the probe
	// was abandoned. No error is sent on the wire; it only drives the
	// optional retry_reached callback.
	CodeExhausted liberr.CodeError = liberr.MinPkgQuery + iota
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgQuery, message)
}

func message(code liberr.CodeError) string {
	switch code {
	case CodeExhausted:
		return "query retries exhausted"
	default:
		return liberr.UnknownMessage
	}
}

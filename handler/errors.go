package handler

import (
	liberr "github.com/nabbar/ottd-masterserver/errors"
)

// CodeRegistryFailure wraps a registry call failure surfaced during
// dispatch; these are logged and the datagram is dropped, never
// propagated to the socket loop.
const CodeRegistryFailure liberr.CodeError = liberr.MinPkgHandler + iota

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgHandler, message)
}

func message(code liberr.CodeError) string {
	switch code {
	case CodeRegistryFailure:
		return "registry call failed while handling a datagram"
	default:
		return liberr.UnknownMessage
	}
}

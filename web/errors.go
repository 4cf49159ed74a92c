package web

import (
	liberr "github.com/nabbar/ottd-masterserver/errors"
)

// CodeRegistryFailure wraps a registry read-path failure (500 response).
const CodeRegistryFailure liberr.CodeError = liberr.MinPkgWeb + iota

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgWeb, message)
}

func message(code liberr.CodeError) string {
	switch code {
	case CodeRegistryFailure:
		return "registry read failed"
	default:
		return liberr.UnknownMessage
	}
}

// Package session implements the legacy/managed session-key encoding and
// the per-process counter+token allocator (component F).
package session

import (
	liberr "github.com/nabbar/ottd-masterserver/errors"
)

const (
	// CodeBadToken is raised when a presented managed key's token byte
	// does not match the one stored for that key.
	CodeBadToken liberr.CodeError = liberr.MinPkgSession + iota
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgSession, message)
}

func message(code liberr.CodeError) string {
	switch code {
	case CodeBadToken:
		return "session key token mismatch"
	default:
		return liberr.UnknownMessage
	}
}

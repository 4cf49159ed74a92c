// Package registry defines the durable server registry contract: the
// online/offline map, its TTL-bound stale sweep, and the two read paths
// it serves. registry/memory, registry/dynamodb and registry/redis each
// satisfy the Registry interface.
package registry

import (
	liberr "github.com/nabbar/ottd-masterserver/errors"
)

const (
	// CodeMiss is a domain-level no-op: the expected key was not found
	// (e.g. UNREGISTER of an already-unknown server).
	CodeMiss liberr.CodeError = liberr.MinPkgRegistry + iota
	// CodeConflict signals an (ip,port) bound under a different session
	// key; the registry repairs by marking the prior entry offline.
	CodeConflict
	// CodeBackend wraps a transport/storage-level failure from a
	// production backend (DynamoDB, Redis).
	CodeBackend
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgRegistry, message)
}

func message(code liberr.CodeError) string {
	switch code {
	case CodeMiss:
		return "registry entry not found"
	case CodeConflict:
		return "address rebound to a different session key"
	case CodeBackend:
		return "registry backend failure"
	default:
		return liberr.UnknownMessage
	}
}

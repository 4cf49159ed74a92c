// Package protocol implements the OpenTTD master-server wire codec: framing,
// message decoding/encoding and the GameInfo payload versions.
package protocol

import (
	liberr "github.com/nabbar/ottd-masterserver/errors"
)

const (
	// CodeInvalidSize is raised when the declared packet length does not
	// match the number of bytes actually received.
	CodeInvalidSize liberr.CodeError = liberr.MinPkgProtocol + iota
	// CodeInvalidType is raised for an unknown or unhandled packet type tag.
	CodeInvalidType
	// CodeInvalidData is raised for any payload inconsistency: trailing
	// bytes, bad welcome string, out-of-range version or SLT.
	CodeInvalidData
	// CodeTooBig is raised when an encoded packet would exceed SAFE_MTU.
	CodeTooBig
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgProtocol, message)
}

func message(code liberr.CodeError) string {
	switch code {
	case CodeInvalidSize:
		return "declared packet length does not match payload size"
	case CodeInvalidType:
		return "unknown or unhandled packet type"
	case CodeInvalidData:
		return "packet payload is malformed"
	case CodeTooBig:
		return "encoded packet exceeds SAFE_MTU"
	default:
		return liberr.UnknownMessage
	}
}

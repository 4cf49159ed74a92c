package endpoint

import (
	liberr "github.com/nabbar/ottd-masterserver/errors"
)

const (
	// CodeBindFailed wraps a net.ListenUDP failure for a configured bind
	// address.
	CodeBindFailed liberr.CodeError = liberr.MinPkgEndpoint + iota
	// CodeSendFailed wraps a write failure on send().
	CodeSendFailed
	// CodeRelayFailed wraps a SOCKS5 relay handshake or I/O failure.
	CodeRelayFailed
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgEndpoint, message)
}

func message(code liberr.CodeError) string {
	switch code {
	case CodeBindFailed:
		return "failed to bind UDP endpoint"
	case CodeSendFailed:
		return "failed to send UDP datagram"
	case CodeRelayFailed:
		return "SOCKS5 relay failure"
	default:
		return liberr.UnknownMessage
	}
}

package config

import (
	liberr "github.com/nabbar/ottd-masterserver/errors"
)

const (
	CodeLoadFailed liberr.CodeError = liberr.MinPkgConfig + iota
	CodeValidation
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgConfig, message)
}

func message(code liberr.CodeError) string {
	switch code {
	case CodeLoadFailed:
		return "configuration load failed"
	case CodeValidation:
		return "configuration is invalid"
	default:
		return liberr.UnknownMessage
	}
}

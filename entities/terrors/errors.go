//  _
// | |_ ___  ___ ___  ___ _ __ __ _
// | __/ _ \/ __/ __|/ _ \ '__/ _` |
// | ||  __/\__ \__ \  __/ | | (_| |
//  \__\___||___/___/\___|_|  \__,_|
//
//  Copyright © 2019 - 2026 Tessera Labs B.V. All rights reserved.
//
//  CONTACT: hello@tesseradb.io
//

package terrors

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Code is a stable error kind. Codes cross the RPC boundary and drive
// client retry policy, so existing values must never be renumbered.
type Code int

const (
	OK Code = iota
	InvalidQuery
	InvalidArgument
	StrictMode
	NotFound
	Conflict
	Cancelled
	Timeout
	Network
	ProtocolMismatch
	ReplicationState
	DataHashMismatch
	Terminated
	InvalidAggregation
	Internal
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case InvalidQuery:
		return "InvalidQuery"
	case InvalidArgument:
		return "InvalidArgument"
	case StrictMode:
		return "StrictMode"
	case NotFound:
		return "NotFound"
	case Conflict:
		return "Conflict"
	case Cancelled:
		return "Cancelled"
	case Timeout:
		return "Timeout"
	case Network:
		return "Network"
	case ProtocolMismatch:
		return "ProtocolMismatch"
	case ReplicationState:
		return "ReplicationState"
	case DataHashMismatch:
		return "DataHashMismatch"
	case Terminated:
		return "Terminated"
	case InvalidAggregation:
		return "InvalidAggregation"
	case Internal:
		return "Internal"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is the typed error carried through the query pipeline and over the
// wire. The message keeps namespace and field context where known.
type Error struct {
	code Code
	msg  string
}

func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) Code() Code {
	if e == nil {
		return OK
	}
	return e.code
}

// Is makes errors.Is(err, terrors.New(code, "")) match on code alone.
func (e *Error) Is(target error) bool {
	var te *Error
	if !errors.As(target, &te) {
		return false
	}
	return te.code == e.code
}

// CodeOf unwraps err down to the first typed error and returns its code.
// Plain errors map to Internal, context errors to Cancelled/Timeout, nil to
// OK.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var te *Error
	if errors.As(err, &te) {
		return te.code
	}
	switch {
	case errors.Is(err, context.Canceled):
		return Cancelled
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	}
	return Internal
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

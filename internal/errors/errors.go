package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Code classifies a failure so callers can decide whether it is fatal.
type Code int

const (
	Unknown Code = iota
	// Config errors abort the process before any work begins.
	Config
	// Transport errors cover connection failures, timeouts and non-success HTTP replies.
	Transport
	// Decode errors mean the index answered with a body that could not be parsed.
	Decode
	Write
	Commit
)

func (c Code) String() string {
	switch c {
	case Config:
		return "config"
	case Transport:
		return "transport"
	case Decode:
		return "decode"
	case Write:
		return "write"
	case Commit:
		return "commit"
	default:
		return "unknown"
	}
}

// Error is a coded error carrying an optional cause
type Error struct {
	Code     Code
	Messages []string
	Err      error
}

// Error joins the messages and the cause into one line
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.String())
	if len(e.Messages) > 0 {
		b.WriteString(": ")
		// most recent context first, like fmt.Errorf wrapping
		for i := len(e.Messages) - 1; i >= 0; i-- {
			b.WriteString(e.Messages[i])
			if i > 0 {
				b.WriteString(": ")
			}
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error from a formatted message
func New(code Code, msg string, args ...any) error {
	return &Error{
		Code:     code,
		Messages: []string{fmt.Sprintf(msg, args...)},
	}
}

// Wrap attaches a code and message to err. A nil err stays nil.
func Wrap(err error, code Code, msg string, args ...any) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		if msg != "" {
			e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
		}
		if code != Unknown {
			e.Code = code
		}
		return e
	}
	e = &Error{
		Code: code,
		Err:  err,
	}
	if msg != "" {
		e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
	}
	return e
}

// Extract returns the coded error inside err, or an Unknown one wrapping it
func Extract(err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return &Error{Code: Unknown, Err: err}
}

// Is reports whether err carries the given code
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	return Extract(err).Code == code
}

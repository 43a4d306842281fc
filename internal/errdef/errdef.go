package errdef

import (
	"errors"
	"fmt"
)

// Code classifies an error by the subsystem that produced it so callers
// can route presentation without string matching.
type Code string

const (
	CodeUnknown    Code = ""
	CodeParse      Code = "parse"
	CodeHTTP       Code = "http"
	CodeOAuth      Code = "oauth"
	CodeAuth       Code = "auth"
	CodeTransport  Code = "transport"
	CodeStorage    Code = "storage"
	CodeFilesystem Code = "filesystem"
	CodeConfig     Code = "config"
	CodeCanceled   Code = "canceled"
	CodeInternal   Code = "internal"
)

type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Msg != "" {
			return e.Msg + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf walks the error chain and returns the first classified code.
func CodeOf(err error) Code {
	for err != nil {
		var e *Error
		if errors.As(err, &e) {
			return e.Code
		}
		err = errors.Unwrap(err)
	}
	return CodeUnknown
}

// Message returns the outermost annotated message without the wrapped
// cause, falling back to the full error text for foreign errors.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}

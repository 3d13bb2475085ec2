package config

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/libreswan/pluto/internal/errdefs"
)

// ParseError is a fatal decode error as described by spec.md §4.2 and
// §6: "<file>:<line>: keyword <name>, invalid value: <piece>". Per the
// exit(1) REDESIGN FLAG, it is returned to the caller instead of
// terminating the process.
type ParseError struct {
	File    string
	Line    int
	Keyword string
	Value   string
	msg     string
}

func (e *ParseError) Error() string {
	body := e.msg
	if body == "" {
		body = fmt.Sprintf("keyword %s, invalid value: %s", e.Keyword, e.Value)
	}
	if e.File == "" {
		return body
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, body)
}

// wrapParseError classifies a ParseError as errdefs.InvalidParameter so
// callers can distinguish it programmatically from a registry or
// protocol error, then adds call-site context the way the teacher's
// attach.go wraps stream errors.
func wrapParseError(err *ParseError, context string) error {
	return errdefs.InvalidParameter(errors.Wrap(err, context))
}

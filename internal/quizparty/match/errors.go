package match

import (
	"errors"
	"fmt"
)

// Failure codes surfaced to transport acks. Every rejected operation is
// scoped to its caller; none of them mutate state or reach other rooms.
const (
	CodePermissionDenied = "permission_denied"
	CodeInvalidState     = "invalid_state"
	CodeConflict         = "conflict"
	CodeNotFound         = "not_found"
	CodeInternal         = "internal"
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func Errorf(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf maps any error onto a failure code, defaulting to internal for
// infrastructure faults.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

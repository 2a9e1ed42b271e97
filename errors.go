package jsongraph

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// Syntax errors. Each of these also matches ErrInvalidJSON.
	ErrInvalidJSON              = errors.New("invalid JSON")
	ErrUnexpectedCharacter      = errors.New("unexpected character")
	ErrUnexpectedEnd            = errors.New("unexpected end of input")
	ErrInvalidStringTermination = errors.New("invalid string termination")
	ErrInvalidUnicodeEscape     = errors.New("invalid unicode escape")
	ErrInvalidEscape            = errors.New("invalid escape character")
	ErrInvalidNumber            = errors.New("invalid number")
	ErrInvalidComment           = errors.New("invalid comment")

	// Semantic errors
	ErrUnknownType         = errors.New("unknown type name")
	ErrAmbiguousMember     = errors.New("ambiguous member mapping")
	ErrUnresolvedReference = errors.New("unresolved reference")
	ErrDuplicateReference  = errors.New("duplicate reference id")
	ErrMissingMember       = errors.New("missing member")
	ErrTypeMismatch        = errors.New("type mismatch")

	// Policy errors
	ErrDepthLimit        = errors.New("depth limit exceeded")
	ErrCircularReference = errors.New("circular reference detected")
	ErrUnsupportedValue  = errors.New("unsupported value")
	ErrUnsupportedType   = errors.New("unsupported type")

	// Usage errors
	ErrInvalidTarget   = errors.New("invalid deserialization target")
	ErrInvalidSettings = errors.New("invalid settings")
	ErrCodecClosed     = errors.New("codec is closed")
)

var syntaxErrors = [...]error{
	ErrUnexpectedCharacter,
	ErrUnexpectedEnd,
	ErrInvalidStringTermination,
	ErrInvalidUnicodeEscape,
	ErrInvalidEscape,
	ErrInvalidNumber,
	ErrInvalidComment,
}

// CodecError describes a failed conversion
type CodecError struct {
	Op      string // serialize, deserialize, introspect, ...
	Offset  int    // byte offset into the input, -1 when not applicable
	Line    int    // 1-based, 0 when not applicable
	Column  int    // 1-based, 0 when not applicable
	Limit   int    // configured limit for limit errors
	Message string
	Err     error
}

func (e *CodecError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("jsongraph: %s failed at line %d, column %d: %s", e.Op, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("jsongraph: %s failed: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error
func (e *CodecError) Unwrap() error {
	return e.Err
}

// Is reports syntax errors as ErrInvalidJSON in addition to their own sentinel
func (e *CodecError) Is(target error) bool {
	if target != ErrInvalidJSON {
		return false
	}
	for _, s := range syntaxErrors {
		if errors.Is(e.Err, s) {
			return true
		}
	}
	return false
}

// newSyntaxError builds an error carrying the position within data
func newSyntaxError(data string, offset int, message string, err error) *CodecError {
	line, col := position(data, offset)
	return &CodecError{
		Op:      "deserialize",
		Offset:  offset,
		Line:    line,
		Column:  col,
		Message: message,
		Err:     err,
	}
}

func newDepthLimitError(op string, depth, limit int) *CodecError {
	return &CodecError{
		Op:      op,
		Offset:  -1,
		Limit:   limit,
		Message: fmt.Sprintf("depth %d exceeds limit %d", depth, limit),
		Err:     ErrDepthLimit,
	}
}

func newTypeError(op string, t reflect.Type, message string, err error) *CodecError {
	if t != nil {
		message = fmt.Sprintf("%s: %s", t, message)
	}
	return &CodecError{Op: op, Offset: -1, Message: message, Err: err}
}

func newReferenceError(op string, id int, message string, err error) *CodecError {
	return &CodecError{
		Op:      op,
		Offset:  -1,
		Message: fmt.Sprintf("%s (id %d)", message, id),
		Err:     err,
	}
}

// position converts a byte offset into a 1-based line and column
func position(data string, offset int) (line, col int) {
	if offset > len(data) {
		offset = len(data)
	}
	line, col = 1, 1
	for i := 0; i < offset; i++ {
		if data[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

// errorType labels an error for metrics and logs by its sentinel
func errorType(err error) string {
	for _, s := range knownErrors {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "other"
}

var knownErrors = [...]error{
	ErrUnexpectedCharacter,
	ErrUnexpectedEnd,
	ErrInvalidStringTermination,
	ErrInvalidUnicodeEscape,
	ErrInvalidEscape,
	ErrInvalidNumber,
	ErrInvalidComment,
	ErrUnknownType,
	ErrAmbiguousMember,
	ErrUnresolvedReference,
	ErrDuplicateReference,
	ErrMissingMember,
	ErrTypeMismatch,
	ErrDepthLimit,
	ErrCircularReference,
	ErrUnsupportedValue,
	ErrUnsupportedType,
	ErrInvalidTarget,
	ErrInvalidSettings,
	ErrCodecClosed,
	ErrInvalidJSON,
}

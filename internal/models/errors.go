package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the store, the handlers and the session controller.
// Call sites wrap these with fmt.Errorf("...: %w", ErrX) and callers test with errors.Is.
var (
	ErrIO                  = errors.New("io error")
	ErrRange               = errors.New("page range out of bounds")
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrAuth                = errors.New("authentication failed")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrBackend             = errors.New("backend failure")
	ErrNotFound            = errors.New("not found")
	ErrBusy                = errors.New("session busy")
)

// Failure kinds as reported to clients
const (
	KindIO                  = "IOError"
	KindRange               = "RangeError"
	KindInvalidParameter    = "InvalidParameter"
	KindAuth                = "AuthError"
	KindUnsupportedLanguage = "UnsupportedLanguage"
	KindUnsupportedFormat   = "UnsupportedFormat"
	KindBackend             = "BackendFailure"
	KindNotFound            = "NotFound"
	KindBusy                = "Busy"
)

var kindOrder = []struct {
	err  error
	kind string
}{
	{ErrRange, KindRange},
	{ErrInvalidParameter, KindInvalidParameter},
	{ErrAuth, KindAuth},
	{ErrUnsupportedLanguage, KindUnsupportedLanguage},
	{ErrUnsupportedFormat, KindUnsupportedFormat},
	{ErrNotFound, KindNotFound},
	{ErrBusy, KindBusy},
	{ErrIO, KindIO},
	{ErrBackend, KindBackend},
}

// Failure is the user-facing description of a failed operation
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Classify maps an error onto its taxonomy kind.
// Errors that match no sentinel are reported as BackendFailure.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindBackend
}

// NewFailure builds a Failure from an error
func NewFailure(err error) *Failure {
	return &Failure{
		Kind:    Classify(err),
		Message: err.Error(),
	}
}

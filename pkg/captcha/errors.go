package captcha

import (
	"errors"
	"fmt"
)

// Code identifies a captcha failure.
type Code string

const (
	CodeScriptLoadFailed  Code = "script_load_failed"
	CodeWidgetNotRendered Code = "widget_not_rendered"
	CodeExecutionFailed   Code = "execution_failed"
	CodeUnknownProvider   Code = "unknown_provider"
)

// Error is returned by providers and the gate.
type Error struct {
	Code     Code
	Provider ProviderName
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("captcha: %s (%s): %v", e.Code, e.Provider, e.Err)
	}
	return fmt.Sprintf("captcha: %s (%s)", e.Code, e.Provider)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so callers can write
// errors.Is(err, &captcha.Error{Code: captcha.CodeWidgetNotRendered}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of err, or "" when err is not a captcha error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Package evalerr defines the evaluator's error taxonomy. Every fatal
// condition carries a machine-readable Code alongside the wrapped
// cause, so cmd/compmatch can print a one-line banner and exit
// non-zero without inspecting error strings.
package evalerr

import "fmt"

type Code string

const (
	CodeInputMissing      Code = "InputMissing"
	CodeDecodeFailure     Code = "DecodeFailure"
	CodeManifestMalformed Code = "ManifestMalformed"
	CodeInvariantViolation Code = "InvariantViolation"
)

// Error is a user-visible evaluator failure. Every code except
// CodeInvariantViolation is fatal; an InvariantViolation is recorded
// in the report and the run completes.
type Error struct {
	Code   Code
	Path   string // offending path or record, when applicable
	Reason error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Path, e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.Reason }

func New(code Code, path string, reason error) *Error {
	return &Error{Code: code, Path: path, Reason: reason}
}

func InputMissing(path string, reason error) *Error {
	return New(CodeInputMissing, path, reason)
}

func DecodeFailure(path string, reason error) *Error {
	return New(CodeDecodeFailure, path, reason)
}

func ManifestMalformed(path string, reason error) *Error {
	return New(CodeManifestMalformed, path, reason)
}

func InvariantViolation(refID string, reason error) *Error {
	return New(CodeInvariantViolation, refID, reason)
}

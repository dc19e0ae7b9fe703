package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure by the workflow step that produced it.
type ErrorKind string

const (
	KindDownload            ErrorKind = "DOWNLOAD"
	KindRender              ErrorKind = "RENDER"
	KindPrompt              ErrorKind = "PROMPT"
	KindModelInvocation     ErrorKind = "MODEL_INVOCATION"
	KindModelResponseFormat ErrorKind = "MODEL_RESPONSE_FORMAT"
	KindPersistence         ErrorKind = "PERSISTENCE"
	KindRelocation          ErrorKind = "RELOCATION"
)

// StageError is a classified workflow failure.
type StageError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func newStageError(kind ErrorKind, message string, err error) *StageError {
	return &StageError{Kind: kind, Message: message, Err: err}
}

func DownloadError(message string, err error) *StageError {
	return newStageError(KindDownload, message, err)
}

func RenderError(message string, err error) *StageError {
	return newStageError(KindRender, message, err)
}

func PromptError(message string, err error) *StageError {
	return newStageError(KindPrompt, message, err)
}

func ModelInvocationError(message string, err error) *StageError {
	return newStageError(KindModelInvocation, message, err)
}

func ModelResponseFormatError(message string, err error) *StageError {
	return newStageError(KindModelResponseFormat, message, err)
}

func PersistenceError(message string, err error) *StageError {
	return newStageError(KindPersistence, message, err)
}

func RelocationError(message string, err error) *StageError {
	return newStageError(KindRelocation, message, err)
}

// IsKind reports whether err carries a StageError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first StageError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

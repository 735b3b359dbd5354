package tools

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound indicates the requested tool is not registered.
	ErrToolNotFound = errors.New("tools: tool not found")

	// ErrToolExists indicates a tool with the same name is already registered.
	ErrToolExists = errors.New("tools: tool already registered")
)

// InvalidArgsError indicates the tool was called with bad arguments.
type InvalidArgsError struct {
	Tool    string
	Message string
}

func (e *InvalidArgsError) Error() string {
	return fmt.Sprintf("tools: invalid arguments for %s: %s", e.Tool, e.Message)
}

// Is implements errors.Is for InvalidArgsError.
func (e *InvalidArgsError) Is(target error) bool {
	_, ok := target.(*InvalidArgsError)
	return ok
}

// ErrInvalidArgs is a sentinel for errors.Is matching.
var ErrInvalidArgs = &InvalidArgsError{}

// NewInvalidArgsError creates an InvalidArgsError.
func NewInvalidArgsError(tool, message string) *InvalidArgsError {
	return &InvalidArgsError{Tool: tool, Message: message}
}

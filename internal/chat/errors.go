package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ageniuscoder/tradechat/internal/utils"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("invalid state")
	ErrNotFound     = errors.New("not found")
)

// ValidationError is returned before any mutation when caller input is incomplete.
type ValidationError struct {
	Fields []utils.CustomErrorResponse
}

func NewValidationError(field, tag, message string) *ValidationError {
	return &ValidationError{Fields: []utils.CustomErrorResponse{{Field: field, Tag: tag, Message: message}}}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InvalidStateError is returned for a transition out of a terminal proposal state.
type InvalidStateError struct {
	ProposalID string
	State      ProposalState
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("proposal %s is already %s", e.ProposalID, e.State)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

package modular

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes learner failures
type ErrorCode int

const (
	ErrCodeInvalidPredictorConfig ErrorCode = 1
	ErrCodeInvalidPropertySet     ErrorCode = 2
	ErrCodeTooManyProperties      ErrorCode = 3
	ErrCodeSampleOverflow         ErrorCode = 4
	ErrCodeTreeTooLarge           ErrorCode = 5
	ErrCodeInvalidLeafPredictor   ErrorCode = 6
	ErrCodeBadTokenStream         ErrorCode = 7
)

func (e ErrorCode) String() string {
	switch e {
	case ErrCodeInvalidPredictorConfig:
		return "InvalidPredictorConfig"
	case ErrCodeInvalidPropertySet:
		return "InvalidPropertySet"
	case ErrCodeTooManyProperties:
		return "TooManyProperties"
	case ErrCodeSampleOverflow:
		return "SampleOverflow"
	case ErrCodeTreeTooLarge:
		return "TreeTooLarge"
	case ErrCodeInvalidLeafPredictor:
		return "InvalidLeafPredictor"
	case ErrCodeBadTokenStream:
		return "BadTokenStream"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(e))
	}
}

// ModularError represents an error from the tree learner
type ModularError struct {
	Code    ErrorCode
	Message string
}

func (e *ModularError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewModularError creates a new ModularError
func NewModularError(code ErrorCode, message string) *ModularError {
	return &ModularError{Code: code, Message: message}
}

// IsModularError checks if an error is a ModularError and returns it
func IsModularError(err error) (*ModularError, bool) {
	var merr *ModularError
	if errors.As(err, &merr) {
		return merr, true
	}
	return nil, false
}

// Common errors
var (
	ErrInvalidPredictorConfig = &ModularError{Code: ErrCodeInvalidPredictorConfig, Message: "invalid predictor settings"}
	ErrInvalidPropertySet     = &ModularError{Code: ErrCodeInvalidPropertySet, Message: "invalid property set configuration"}
	ErrTreeTooLarge           = &ModularError{Code: ErrCodeTreeTooLarge, Message: "tree too large"}
)

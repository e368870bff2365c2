package dataplan

import (
	"errors"
	"fmt"
)

// Error codes for specific failure types
const (
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodePlanning         = "PLANNING_ERROR"
	ErrCodeSequencing       = "SEQUENCING_ERROR"
	ErrCodeUnknownTool      = "UNKNOWN_TOOL"
	ErrCodeUnknownDataset   = "UNKNOWN_DATASET"
	ErrCodeEmptyPlan        = "EMPTY_PLAN"
	ErrCodeNoDataProduced   = "NO_DATA_PRODUCED"
	ErrCodeFilterValidation = "FILTER_VALIDATION_ERROR"
	ErrCodeInvalidArguments = "INVALID_ARGUMENTS"
	ErrCodeBackend          = "BACKEND_ERROR"
	ErrCodeDataSource       = "DATA_SOURCE_ERROR"
	ErrCodeTranslation      = "TRANSLATION_ERROR"
	ErrCodeCache            = "CACHE_ERROR"
	ErrCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrCodeCancelled        = "EXECUTION_CANCELLED"
)

// Stages where errors originate.
const (
	StagePlanning    = "planning"
	StageExecution   = "execution"
	StageFilter      = "filter"
	StageTranslation = "translation"
	StageCatalog     = "catalog"
	StageLoad        = "load"
	StageInit        = "initialization"
)

// DataPlanError is the error type shared by every component. Step and Index
// are -1 when they do not apply.
type DataPlanError struct {
	Code    string // machine-readable code, e.g. ErrCodeSequencing
	Stage   string // where the error occurred, e.g. "execution"
	Message string
	Step    int // index of the plan step being executed
	Index   int // index of the offending filter
	Cause   error
}

// Error implements the error interface.
func (e *DataPlanError) Error() string {
	msg := e.Message
	if e.Step >= 0 {
		msg = fmt.Sprintf("step %d: %s", e.Step, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, msg)
}

// Unwrap returns the underlying cause of the error, allowing for error chaining.
func (e *DataPlanError) Unwrap() error {
	return e.Cause
}

// AtStep returns a copy of the error bound to the given step index.
func (e *DataPlanError) AtStep(step int) *DataPlanError {
	c := *e
	c.Step = step
	return &c
}

// NewError creates a new DataPlanError.
func NewError(code, stage, message string, cause error) *DataPlanError {
	return &DataPlanError{
		Code:    code,
		Stage:   stage,
		Message: message,
		Step:    -1,
		Index:   -1,
		Cause:   cause,
	}
}

// CodeOf returns the code of the first DataPlanError in err's chain.
func CodeOf(err error) string {
	var dpErr *DataPlanError
	if errors.As(err, &dpErr) {
		return dpErr.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// Specific error constructors

func NewInvalidInputError(stage, message string) *DataPlanError {
	return NewError(ErrCodeInvalidInput, stage, message, nil)
}

func NewPlanningError(message string, cause error) *DataPlanError {
	return NewError(ErrCodePlanning, StagePlanning, message, cause)
}

func NewSequencingError(message string) *DataPlanError {
	return NewError(ErrCodeSequencing, StageExecution, message, nil)
}

func NewUnknownToolError(tool string) *DataPlanError {
	return NewError(ErrCodeUnknownTool, StageExecution, fmt.Sprintf("unknown tool '%s'", tool), nil)
}

func NewUnknownDatasetError(dataset string) *DataPlanError {
	return NewError(ErrCodeUnknownDataset, StageCatalog, fmt.Sprintf("unknown dataset '%s'", dataset), nil)
}

func NewEmptyPlanError() *DataPlanError {
	return NewError(ErrCodeEmptyPlan, StageExecution, "plan has no steps", nil)
}

func NewNoDataProducedError() *DataPlanError {
	return NewError(ErrCodeNoDataProduced, StageExecution, "plan finished without loading a table", nil)
}

// NewFilterValidationError reports a malformed filter. index is -1 for
// problems with the filter list itself.
func NewFilterValidationError(index int, message string) *DataPlanError {
	err := NewError(ErrCodeFilterValidation, StageFilter, message, nil)
	err.Index = index
	return err
}

func NewInvalidArgumentsError(tool, message string) *DataPlanError {
	return NewError(ErrCodeInvalidArguments, StageExecution, fmt.Sprintf("%s: %s", tool, message), nil)
}

func NewBackendError(stage string, cause error) *DataPlanError {
	return NewError(ErrCodeBackend, stage, "model backend request failed", cause)
}

func NewDataSourceError(dataset string, cause error) *DataPlanError {
	return NewError(ErrCodeDataSource, StageLoad, fmt.Sprintf("failed to fetch dataset '%s'", dataset), cause)
}

func NewTranslationError(message string, cause error) *DataPlanError {
	return NewError(ErrCodeTranslation, StageTranslation, message, cause)
}

func NewCacheError(operation string, cause error) *DataPlanError {
	return NewError(ErrCodeCache, StageLoad, fmt.Sprintf("cache operation '%s' failed", operation), cause)
}

func NewConfigurationError(message string, cause error) *DataPlanError {
	return NewError(ErrCodeConfiguration, StageInit, message, cause)
}

func NewCancelledError(stage string, cause error) *DataPlanError {
	return NewError(ErrCodeCancelled, stage, "execution cancelled", cause)
}

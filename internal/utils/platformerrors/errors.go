package platformerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// UpdateIDKey carries the transport update identifier through a handling context.
type UpdateIDKey struct{}

// WithUpdateID returns a context tagged with the inbound update identifier.
func WithUpdateID(ctx context.Context, updateID string) context.Context {
	return context.WithValue(ctx, UpdateIDKey{}, updateID)
}

func updateIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(UpdateIDKey{}).(string); ok {
		return id
	}
	return ""
}

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeStorageBackend ErrorType = "STORAGE_BACKEND"
	ErrorTypeMetadataWrite  ErrorType = "METADATA_WRITE"
	ErrorTypeNotFound       ErrorType = "NOT_FOUND"
	ErrorTypeTransport      ErrorType = "TRANSPORT"
	ErrorTypeValidation     ErrorType = "VALIDATION"
	ErrorTypeInternal       ErrorType = "INTERNAL"
)

// Layer represents the application layer where the error occurred
type Layer string

const (
	LayerRepository     Layer = "repository"
	LayerDomain         Layer = "domain"
	LayerInfrastructure Layer = "infrastructure"
	LayerRouter         Layer = "router"
	LayerHandler        Layer = "handler"
)

// PlatformError represents an error with context and metadata
type PlatformError struct {
	UUID      string
	Type      ErrorType
	Message   string
	Err       error
	Context   map[string]any
	UpdateID  string
	Layer     Layer
	Timestamp time.Time
}

func (e *PlatformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s][%s][%s] %s: %v", e.Layer, e.Type, e.UUID, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s][%s][%s] %s", e.Layer, e.Type, e.UUID, e.Message)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// GetErrorType returns the error type
func (e *PlatformError) GetErrorType() ErrorType {
	return e.Type
}

// GetUUID returns the error UUID
func (e *PlatformError) GetUUID() string {
	return e.UUID
}

// NewError creates a new PlatformError with the specified parameters
func NewError(ctx context.Context, layer Layer, errorType ErrorType, message string, err error, customUUID string) *PlatformError {
	return NewErrorWithContext(ctx, layer, errorType, message, err, customUUID, nil)
}

// NewErrorWithContext creates a new PlatformError with additional context fields
func NewErrorWithContext(ctx context.Context, layer Layer, errorType ErrorType, message string, err error, customUUID string, contextFields map[string]any) *PlatformError {
	errorUUID := customUUID
	if errorUUID == "" {
		errorUUID = "auto-generated-uuid"
	}

	errorContext := make(map[string]any, len(contextFields))
	for k, v := range contextFields {
		errorContext[k] = v
	}

	return &PlatformError{
		UUID:      errorUUID,
		Type:      errorType,
		Message:   message,
		Err:       err,
		UpdateID:  updateIDFromContext(ctx),
		Layer:     layer,
		Timestamp: time.Now().UTC(),
		Context:   errorContext,
	}
}

// TypeOf returns the ErrorType of the outermost PlatformError in err's chain,
// or ErrorTypeInternal when err carries none.
func TypeOf(err error) ErrorType {
	var platformErr *PlatformError
	if errors.As(err, &platformErr) {
		return platformErr.Type
	}
	return ErrorTypeInternal
}

// IsErrorType checks if an error is a PlatformError with the specified type
func IsErrorType(err error, errorType ErrorType) bool {
	if err == nil {
		return false
	}
	var platformErr *PlatformError
	if errors.As(err, &platformErr) {
		return platformErr.Type == errorType
	}
	return false
}

// ErrorTypeToHTTPStatus maps error types to HTTP status codes
func ErrorTypeToHTTPStatus(errorType ErrorType) int {
	switch errorType {
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeStorageBackend, ErrorTypeTransport:
		return http.StatusBadGateway
	case ErrorTypeMetadataWrite:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// LogError logs err with its platform metadata when present.
func LogError(logger zerolog.Logger, err error) {
	if err == nil {
		return
	}

	var platformErr *PlatformError
	if !errors.As(err, &platformErr) {
		logger.Error().Err(err).Msg("unclassified error")
		return
	}

	event := logger.Error().
		Str("error_uuid", platformErr.UUID).
		Str("error_type", string(platformErr.Type)).
		Str("layer", string(platformErr.Layer)).
		Time("timestamp_utc", platformErr.Timestamp)

	if platformErr.UpdateID != "" {
		event = event.Str("update_id", platformErr.UpdateID)
	}
	for k, v := range platformErr.Context {
		event = event.Interface(k, v)
	}
	if platformErr.Err != nil {
		event = event.Err(platformErr.Err)
	}

	event.Msg(platformErr.Message)
}

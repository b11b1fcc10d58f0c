package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for twin operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodeUnknownNode     ErrorCode = 1001
	ErrCodeNotFound        ErrorCode = 1002

	// Codec errors: malformed words and persisted files
	ErrCodeMalformedHex       ErrorCode = 1100
	ErrCodeWrongLength        ErrorCode = 1101
	ErrCodeWrongMagic         ErrorCode = 1102
	ErrCodeUnsupportedVersion ErrorCode = 1103
	ErrCodeChecksumFailed     ErrorCode = 1104
	ErrCodeValueOutOfRange    ErrorCode = 1105

	// Configuration
	ErrCodeConfiguration ErrorCode = 1200

	// Server errors (5xx equivalent)
	ErrCodeInternal         ErrorCode = 2000
	ErrCodeUnavailable      ErrorCode = 2001
	ErrCodePersistence      ErrorCode = 2002
	ErrCodeTelemetry        ErrorCode = 2003
	ErrCodeAuditChainBroken ErrorCode = 2004
)

// TwinError represents a structured error with code and context
type TwinError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *TwinError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *TwinError) Unwrap() error {
	return e.Cause
}

// IsCodec reports whether the code belongs to the codec class
func (c ErrorCode) IsCodec() bool {
	return c >= 1100 && c < 1200
}

// ToGRPCStatus converts TwinError to gRPC status
func (e *TwinError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

func (e *TwinError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument, ErrCodeUnknownNode, ErrCodeConfiguration,
		ErrCodeMalformedHex, ErrCodeWrongLength, ErrCodeValueOutOfRange:
		return codes.InvalidArgument
	case ErrCodeNotFound:
		return codes.NotFound
	case ErrCodeWrongMagic, ErrCodeUnsupportedVersion, ErrCodeChecksumFailed, ErrCodeAuditChainBroken:
		return codes.DataLoss
	case ErrCodeUnavailable, ErrCodeTelemetry:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// HTTPStatus maps the error to an HTTP status code through its gRPC code.
// Codec failures are always the caller's input and map to 400.
func (e *TwinError) HTTPStatus() int {
	if e.Code.IsCodec() {
		return http.StatusBadRequest
	}
	switch e.ToGRPCStatus().Code() {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewTwinError creates a new TwinError
func NewTwinError(code ErrorCode, message string, cause error) *TwinError {
	return &TwinError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *TwinError) WithDetail(key string, value interface{}) *TwinError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *TwinError {
	return NewTwinError(ErrCodeInvalidArgument, message, cause)
}

func UnknownNode(id string) *TwinError {
	return NewTwinError(ErrCodeUnknownNode, fmt.Sprintf("unknown node id: %s", id), nil).
		WithDetail("node_id", id)
}

func NotFound(what string) *TwinError {
	return NewTwinError(ErrCodeNotFound, fmt.Sprintf("%s not found", what), nil)
}

func MalformedHex(input string, cause error) *TwinError {
	return NewTwinError(ErrCodeMalformedHex, fmt.Sprintf("malformed hex word %q", input), cause).
		WithDetail("input", input)
}

func WrongLength(what string, got, want int) *TwinError {
	return NewTwinError(ErrCodeWrongLength, fmt.Sprintf("%s: got %d bytes, want %d", what, got, want), nil).
		WithDetail("got", got).
		WithDetail("want", want)
}

func WrongMagic(got, want string) *TwinError {
	return NewTwinError(ErrCodeWrongMagic, fmt.Sprintf("bad file magic %q, want %q", got, want), nil).
		WithDetail("got", got).
		WithDetail("want", want)
}

func UnsupportedVersion(version uint16) *TwinError {
	return NewTwinError(ErrCodeUnsupportedVersion, fmt.Sprintf("unsupported file version %d", version), nil).
		WithDetail("version", version)
}

func ChecksumFailed(expected, actual uint32) *TwinError {
	return NewTwinError(ErrCodeChecksumFailed, fmt.Sprintf("checksum validation failed: expected %d, got %d", expected, actual), nil).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

func ValueOutOfRange(field string, value interface{}) *TwinError {
	return NewTwinError(ErrCodeValueOutOfRange, fmt.Sprintf("%s out of range: %v", field, value), nil).
		WithDetail("field", field).
		WithDetail("value", value)
}

func Configuration(message string, cause error) *TwinError {
	return NewTwinError(ErrCodeConfiguration, message, cause)
}

func InternalError(message string, cause error) *TwinError {
	return NewTwinError(ErrCodeInternal, message, cause)
}

func Unavailable(message string, cause error) *TwinError {
	return NewTwinError(ErrCodeUnavailable, message, cause)
}

func PersistenceFailed(message string, cause error) *TwinError {
	return NewTwinError(ErrCodePersistence, message, cause)
}

func TelemetryFailed(message string, cause error) *TwinError {
	return NewTwinError(ErrCodeTelemetry, message, cause)
}

func AuditChainBroken(seq uint64) *TwinError {
	return NewTwinError(ErrCodeAuditChainBroken, fmt.Sprintf("audit chain broken at seq %d", seq), nil).
		WithDetail("seq", seq)
}

// IsTwinError checks if an error is, or wraps, a TwinError
func IsTwinError(err error) bool {
	var te *TwinError
	return errors.As(err, &te)
}

// IsCodecError reports whether err is a hard codec/parse failure
func IsCodecError(err error) bool {
	var te *TwinError
	if errors.As(err, &te) {
		return te.Code.IsCodec()
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var te *TwinError
	if errors.As(err, &te) {
		return te.Code
	}
	return ErrCodeInternal
}

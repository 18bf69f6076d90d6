package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
	// ErrCodePrecondition is used when required data is missing from stored records
	ErrCodePrecondition = "ERR_PRECONDITION_FAILED"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConflict            = "ERR_CONFLICT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	// ErrCodeAlreadyInvoiced is used when another invoice claimed an order first
	ErrCodeAlreadyInvoiced = "ERR_ALREADY_INVOICED"
)

// Business rule error codes
const (
	ErrCodeInvalidState  = "ERR_INVALID_STATE"
	ErrCodeBusinessRule  = "ERR_BUSINESS_RULE"
	ErrCodeInvalidStatus = "ERR_INVALID_STATUS"
	// ErrCodePartialCompletion is used when an invoice was written but some orders were not linked
	ErrCodePartialCompletion = "ERR_PARTIAL_COMPLETION"
)

// Upload error codes
const (
	ErrCodeUnsupportedFile      = "ERR_UNSUPPORTED_FILE"
	ErrCodeRequestTooLarge      = "ERR_REQUEST_TOO_LARGE"
	ErrCodeUnreadableFile       = "ERR_UNREADABLE_FILE"
	ErrCodeClassificationFailed = "ERR_CLASSIFICATION_FAILED"
)

// Upstream error codes
const (
	ErrCodeRateLimited     = "ERR_RATE_LIMITED"
	ErrCodePaymentRequired = "ERR_PAYMENT_REQUIRED"
	ErrCodeUnavailable     = "ERR_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,
	ErrCodePrecondition: http.StatusUnprocessableEntity,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeAlreadyInvoiced:     http.StatusConflict,

	ErrCodeInvalidState:      http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:      http.StatusUnprocessableEntity,
	ErrCodeInvalidStatus:     http.StatusBadRequest,
	ErrCodePartialCompletion: http.StatusMultiStatus,

	ErrCodeUnsupportedFile:      http.StatusUnsupportedMediaType,
	ErrCodeRequestTooLarge:      http.StatusRequestEntityTooLarge,
	ErrCodeUnreadableFile:       http.StatusBadRequest,
	ErrCodeClassificationFailed: http.StatusUnprocessableEntity,

	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodePaymentRequired: http.StatusPaymentRequired,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":              ErrCodeNotFound,
	"ALREADY_EXISTS":         ErrCodeAlreadyExists,
	"INVALID_INPUT":          ErrCodeInvalidInput,
	"INVALID_STATE":          ErrCodeInvalidState,
	"UNAUTHORIZED":           ErrCodeUnauthorized,
	"FORBIDDEN":              ErrCodeForbidden,
	"CONCURRENCY_CONFLICT":   ErrCodeConcurrencyConflict,
	"UNAVAILABLE":            ErrCodeUnavailable,
	"PRECONDITION_FAILED":    ErrCodePrecondition,
	"ORDER_ALREADY_INVOICED": ErrCodeAlreadyInvoiced,
	"PARTIAL_COMPLETION":     ErrCodePartialCompletion,
	"INVALID_STATUS":         ErrCodeInvalidStatus,
	"INVALID_INVOICE_NUMBER": ErrCodeInvalidInput,
	"INVALID_CUSTOMER":       ErrCodeInvalidInput,
	"EMPTY_INVOICE":          ErrCodeBusinessRule,
	"INVALID_LINE_TOTAL":     ErrCodeBusinessRule,
	"INVALID_TOTAL":          ErrCodeBusinessRule,
	"UNSUPPORTED_FILE_TYPE":  ErrCodeUnsupportedFile,
	"RATE_LIMITED":           ErrCodeRateLimited,
	"PAYMENT_REQUIRED":       ErrCodePaymentRequired,
	"CLASSIFICATION_FAILED":  ErrCodeClassificationFailed,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the API format or unknown are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}

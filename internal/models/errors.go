package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes carried by AppError.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeValidation      = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeConflict        = "CONFLICT"
	CodePendingApproval = "PENDING_APPROVAL"
	CodeInternal        = "INTERNAL_ERROR"
)

var codeStatus = map[string]int{
	CodeNotFound:        fiber.StatusNotFound,
	CodeValidation:      fiber.StatusBadRequest,
	CodeUnauthorized:    fiber.StatusUnauthorized,
	CodeForbidden:       fiber.StatusForbidden,
	CodePendingApproval: fiber.StatusForbidden,
	CodeConflict:        fiber.StatusConflict,
}

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError is an error a user may see. Message is shown as is; Err is the
// underlying cause, if any.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

func NewNotFoundError(resource string, id any) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s with ID %v not found", resource, id)}
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message}
}

func NewConflictError(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message}
}

// NewPendingApprovalError is returned when an unapproved account signs in.
func NewPendingApprovalError(message string) *AppError {
	return &AppError{Code: CodePendingApproval, Message: message}
}

// NewInternalError hides err behind a generic message.
func NewInternalError(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "Internal server error", Err: err}
}

// CodeOf returns the code of the AppError err wraps, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err wraps an AppError with the given code.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}

// StatusFor maps an error to the HTTP status the API answers with.
// Anything that is not a known AppError is a 500.
func StatusFor(err error) int {
	if status, ok := codeStatus[CodeOf(err)]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

// RespondWithError writes err as an ErrorResponse. The cause of an
// internal error is never sent to the client.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
	}
	resp := ErrorResponse{Error: appErr.Message, Code: appErr.Code}
	if appErr.Err != nil && appErr.Code != CodeInternal {
		resp.Details = appErr.Err.Error()
	}
	return c.Status(status).JSON(resp)
}

package app

import (
	"errors"
	"fmt"
	"net/http"

	"clientportal/api/internal/aggregate"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(field, message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, map[string]any{"field": field})
}

func unauthorizedError() *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
}

func forbiddenError(action string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"action": action})
}

func notFoundError(what string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", what+" not found", nil)
}

func conflictError() *DomainError {
	return domainError(http.StatusConflict, "CONFLICT", "Portal settings were changed by another request, retry", nil)
}

func upstreamError(err error) *DomainError {
	domainErr := domainError(http.StatusInternalServerError, "UPSTREAM_QUERY_FAILED", "Failed to load portal data", nil)
	var upstream *aggregate.UpstreamQueryError
	if errors.As(err, &upstream) {
		domainErr.Details = map[string]any{"collection": upstream.Collection}
	}
	domainErr.Err = err
	return domainErr
}

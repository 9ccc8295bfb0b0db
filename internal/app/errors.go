package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"folio/api/internal/auth"
	"folio/api/internal/authpw"
	"folio/api/internal/blob"
	"folio/api/internal/export"
	"folio/api/internal/lifecycle"
	"folio/api/internal/receipt"
	"folio/api/internal/revisions"
	"folio/api/internal/session"
	"folio/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(format string, args ...any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, string(lifecycle.CodeValidation), fmt.Sprintf(format, args...), nil)
}

func notFoundError(what string) *DomainError {
	return domainError(http.StatusNotFound, string(lifecycle.CodeNotFound), what+" not found", nil)
}

var errForbidden = domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var actionErr *lifecycle.ActionError
	if errors.As(err, &actionErr) {
		details := map[string]any{
			"kind":   actionErr.Kind,
			"state":  actionErr.State,
			"action": actionErr.Action,
		}
		switch {
		case errors.Is(err, lifecycle.ErrIllegalTransition):
			return http.StatusConflict, string(actionErr.Code), actionErr.Message, details
		case errors.Is(err, lifecycle.ErrNotFound):
			return http.StatusNotFound, string(actionErr.Code), actionErr.Message, details
		default:
			return http.StatusUnprocessableEntity, string(actionErr.Code), actionErr.Message, details
		}
	}

	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, store.ErrNotFound), errors.Is(err, revisions.ErrNoHistory):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, "CONFLICT", "Already exists", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, session.ErrSessionNotFound), errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrMissingFields), errors.Is(err, authpw.ErrWeakPassword), errors.Is(err, authpw.ErrInvalidEmail):
		return http.StatusUnprocessableEntity, string(lifecycle.CodeValidation), err.Error(), nil
	case errors.Is(err, receipt.ErrInvalidItem), errors.Is(err, receipt.ErrInvalidRate), errors.Is(err, receipt.ErrPositionMissing):
		return http.StatusUnprocessableEntity, string(lifecycle.CodeValidation), err.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat), errors.Is(err, export.ErrEmptyBatch):
		return http.StatusUnprocessableEntity, string(lifecycle.CodeValidation), err.Error(), nil
	case errors.Is(err, revisions.ErrInvalidID):
		return http.StatusUnprocessableEntity, string(lifecycle.CodeValidation), "invalid revision reference", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, blob.ErrInvalidConfig):
		return http.StatusServiceUnavailable, "DEPENDENCY_FAILURE", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

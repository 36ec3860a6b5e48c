package app

import (
	"fmt"
	"net/http"
)

// DomainError is an error the HTTP layer reports as is: status, stable code
// and a message safe to show to the user.
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

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func badRequest(message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

var (
	errInvalidState   = domainError(http.StatusBadRequest, "INVALID_STATE", "Login state is invalid or expired", nil)
	errSaveInProgress = domainError(http.StatusConflict, "SAVE_IN_PROGRESS", "This letter is already being saved", nil)
)

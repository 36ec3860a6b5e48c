package gdocs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"letters/api/internal/docsync"
)

var quotaReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
	"storageQuotaExceeded":  true,
}

// classify maps Google API failures onto the docsync error taxonomy.
// Transport failures and cancellations count as transient.
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w: %s", op, kindOf(apiErr), apiErr.Message)
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500 {
			return fmt.Errorf("%s: %w: token refresh: %v", op, docsync.ErrTransient, err)
		}
		return fmt.Errorf("%s: %w: token refresh: %v", op, docsync.ErrAuth, err)
	}
	return fmt.Errorf("%s: %w: %v", op, docsync.ErrTransient, err)
}

func kindOf(apiErr *googleapi.Error) error {
	switch code := apiErr.Code; {
	case code == http.StatusUnauthorized:
		return docsync.ErrAuth
	case code == http.StatusTooManyRequests:
		return docsync.ErrQuota
	case code == http.StatusForbidden:
		if hasQuotaReason(apiErr) {
			return docsync.ErrQuota
		}
		return docsync.ErrAuth
	case code == http.StatusNotFound:
		return docsync.ErrNotFound
	case code == http.StatusConflict, code == http.StatusPreconditionFailed:
		return docsync.ErrConflict
	case code == http.StatusBadRequest:
		// A stale WriteControl revision is reported as a 400.
		msg := strings.ToLower(apiErr.Message)
		if strings.Contains(msg, "revision") || strings.Contains(msg, "failed_precondition") {
			return docsync.ErrConflict
		}
		return docsync.ErrValidation
	default:
		return docsync.ErrTransient
	}
}

func hasQuotaReason(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		if quotaReasons[item.Reason] {
			return true
		}
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "quota")
}

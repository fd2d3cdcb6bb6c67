package mqhandler

import (
	"errors"

	"notifydecision/internal/model"
	"notifydecision/pkg/util"
)

// classifyDomainError maps the preference sentinels onto retry decisions.
// Store failures are always retried; the generic rules only refine the label.
func classifyDomainError(err error) (bool, string, bool) {
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		return false, "invalid_request", true
	case errors.Is(err, model.ErrNotFound):
		return false, "not_found", true
	case errors.Is(err, model.ErrStoreUnavailable):
		if retryable, errorType := util.IsRetryableError(err); retryable {
			return true, errorType, true
		}
		return true, "store_unavailable", true
	}
	return false, "", false
}

func retryableError(err error) (bool, string) {
	return util.IsRetryableError(err, classifyDomainError)
}

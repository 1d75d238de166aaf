package anthropic

import (
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/sells-group/menu-ingredients/internal/resilience"
)

// StatusCode returns the HTTP status of an API error, or 0.
func StatusCode(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsRetryable reports whether a failed call is worth repeating: throttling,
// overload and server errors, or a transient network failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if code := StatusCode(err); code != 0 {
		return resilience.IsTransientHTTPStatus(code)
	}
	return resilience.IsTransient(err)
}

package platform

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrExcluded means the caller is no longer a participant of the group the
// request was scoped to. It is terminal for the conversation within the
// session; everything else is considered transient.
var ErrExcluded = errors.New("caller is not a group participant")

// APIError is a non-2xx response that does not carry the exclusion signal.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("platform: %s (status %d)", e.Message, e.Status)
}

// IsTransient reports whether err should be absorbed and retried on the
// next tick rather than escalated.
func IsTransient(err error) bool {
	return err != nil && !errors.Is(err, ErrExcluded)
}

// classify translates a non-2xx response into an error. This is the only
// place that inspects the backend's exclusion signal: a 403, or a 404 whose
// body says the caller is not a participant, on a group-scoped call. Every
// other failure stays a plain APIError.
func classify(resp *http.Response, groupScoped bool) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	if eb.Message == "" {
		eb.Message = strings.TrimSpace(string(body))
	}

	if groupScoped {
		switch {
		case resp.StatusCode == http.StatusForbidden,
			eb.Code == "NOT_PARTICIPANT",
			resp.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(eb.Message), "not a participant"):
			return fmt.Errorf("%s: %w", http.StatusText(resp.StatusCode), ErrExcluded)
		}
	}

	return &APIError{Status: resp.StatusCode, Message: eb.Message}
}

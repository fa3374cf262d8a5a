package providers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voicecheck/internal/domain"
)

const errorBodyLimit = 512

// NewHTTPClient returns the client shared by HTTP provider adapters.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Unavailable wraps a transport failure so both the sentinel and the cause
// stay visible to errors.Is.
func Unavailable(name string, err error) error {
	return fmt.Errorf("%s: %w: %w", name, domain.ErrProviderUnavailable, err)
}

// CheckResponse maps non-2xx responses onto provider sentinels: 429 is
// ErrRateLimited, anything else ErrProviderUnavailable.
func CheckResponse(name string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	detail := strings.TrimSpace(string(body))
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s %s: %w: %s", name, resp.Status, domain.ErrRateLimited, detail)
	}
	return fmt.Errorf("%s %s: %w: %s", name, resp.Status, domain.ErrProviderUnavailable, detail)
}

// Malformed reports a response body that could not be used.
func Malformed(name, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", name, domain.ErrMalformedResponse, fmt.Sprintf(format, args...))
}

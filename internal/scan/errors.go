package scan

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrorCategory is the user-facing classification of a render failure.
type ErrorCategory string

// Render error categories surfaced in scan logs.
const (
	ErrorNotFound          ErrorCategory = "not_found"
	ErrorTimeout           ErrorCategory = "timeout"
	ErrorConnectionRefused ErrorCategory = "connection_refused"
	ErrorCertificate       ErrorCategory = "certificate"
	ErrorNavigation        ErrorCategory = "navigation"
)

// ClassifyRenderError maps a render failure to a category and a message
// suitable for the scan log. Messages never contain stack traces.
func ClassifyRenderError(err error, targetURL string) (ErrorCategory, string) {
	host := targetURL
	if u, parseErr := url.Parse(targetURL); parseErr == nil && u.Hostname() != "" {
		host = u.Hostname()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout, fmt.Sprintf("The page at %s took too long to load and timed out.", targetURL)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "name_not_resolved") || strings.Contains(msg, "no such host"):
		return ErrorNotFound, fmt.Sprintf("The site %s could not be found. Check that the URL is correct.", host)
	case strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout"):
		return ErrorTimeout, fmt.Sprintf("The page at %s took too long to load and timed out.", targetURL)
	case strings.Contains(msg, "connection_refused") || strings.Contains(msg, "connection refused"):
		return ErrorConnectionRefused, fmt.Sprintf("The server at %s refused the connection.", host)
	case strings.Contains(msg, "cert") || strings.Contains(msg, "x509") || strings.Contains(msg, "tls"):
		return ErrorCertificate, fmt.Sprintf("The site %s has a certificate problem and could not be loaded securely.", host)
	default:
		return ErrorNavigation, fmt.Sprintf("The page at %s could not be loaded.", targetURL)
	}
}

// ValidateTargetURL rejects tasks whose URL is malformed or not http/https
// before any rendering work is scheduled.
func ValidateTargetURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse target url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return errors.New("target url has no host")
	}
	return nil
}

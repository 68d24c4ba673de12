package scraper

import (
	"context"
	"errors"
	"fmt"
)

// Extraction failures. Every extractor returns exactly one of these (possibly
// wrapped) per failed attempt; a missing price is never reported as zero.
var (
	ErrInvalidNumberFormat = errors.New("invalid number format")
	ErrNoPriceFound        = errors.New("no price found")
	ErrBlockNotFound       = errors.New("embedded data block not found")
	ErrMalformedJSON       = errors.New("malformed embedded json")
	ErrMissingCredentials  = errors.New("missing credentials")
	ErrRequestFailed       = errors.New("request failed")
	ErrInvalidURLShape     = errors.New("invalid url shape")
)

// RequestError describes a failed fetch or API call. Status is zero when the
// request never produced an HTTP response (DNS, TLS, timeout).
type RequestError struct {
	URL    string
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("request failed for %s: %v", e.URL, e.Err)
	}
	if e.Err == nil {
		return fmt.Sprintf("request failed for %s (status %d)", e.URL, e.Status)
	}
	return fmt.Sprintf("request failed for %s (status %d): %v", e.URL, e.Status, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrRequestFailed) match any RequestError.
func (e *RequestError) Is(target error) bool {
	return target == ErrRequestFailed
}

// Timeout reports whether the request hit its deadline.
func (e *RequestError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// ErrorKind maps an extraction error to its short taxonomy name, used in log
// records and API responses.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidURLShape):
		return "invalid_url_shape"
	case errors.Is(err, ErrMissingCredentials):
		return "missing_credentials"
	case errors.Is(err, ErrRequestFailed):
		var re *RequestError
		if errors.As(err, &re) && re.Timeout() {
			return "timeout"
		}
		return "request_failed"
	case errors.Is(err, ErrBlockNotFound):
		return "block_not_found"
	case errors.Is(err, ErrMalformedJSON):
		return "malformed_json"
	case errors.Is(err, ErrInvalidNumberFormat):
		return "invalid_number_format"
	case errors.Is(err, ErrNoPriceFound):
		return "no_price_found"
	default:
		return "unknown"
	}
}

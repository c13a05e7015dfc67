package fuse

import (
	"net/http"
)

// outcome classifies the result of a single send attempt, mirroring the
// HttpConnection result codes of spec.md §6 (HTTP_SUCCESS,
// HTTP_CLIENT_ERROR, HTTP_SERVER_ERROR, HTTP_TIMEOUT,
// HTTP_NETWORK_ERROR, HTTP_REPORT_SERVICE_RETRY) collapsed to the three
// classes the retry loop and fuse accounting actually distinguish.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeClientError
	outcomeRetryable
)

// classify maps a completed (or failed) send attempt to an outcome
// class. HTTP 302 (HTTP_REPORT_SERVICE_RETRY in the source taxonomy) is
// treated as retryable rather than success, matching the original's
// distinct "report service retry" class. Any other unrecognized status
// (1xx, other 3xx) defaults to success — the taxonomy has no
// HTTP_UNKNOWN fault class, and defaulting to success avoids tripping
// the fuse on codes the server never documented as faults.
func classify(status int, err error) outcome {
	if err != nil {
		return outcomeRetryable
	}
	switch {
	case status == http.StatusFound: // 302
		return outcomeRetryable
	case status >= 400 && status < 500:
		return outcomeClientError
	case status >= 500:
		return outcomeRetryable
	default:
		return outcomeSuccess
	}
}

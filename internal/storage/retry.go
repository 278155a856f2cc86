package storage

import (
	"errors"
	"net"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
)

// isRetryable classifies an error as retryable per spec §4.1: SDK-marked
// retryable errors, HTTP 408/429/5xx, or a message/code matching
// timeout/throttle/slowdown/internal-error/connection-reset patterns.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var errResp miniogo.ErrorResponse
	if errors.As(err, &errResp) {
		if errResp.StatusCode == 408 || errResp.StatusCode == 429 || errResp.StatusCode >= 500 {
			return true
		}
		switch strings.ToLower(errResp.Code) {
		case "slowdown", "requesttimeout", "internalerror", "throttlingexception", "serviceunavailable":
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"timeout", "timed out", "throttl", "slowdown", "internal error",
		"econnreset", "etimedout", "socket hang up", "network error",
		"connection reset", "connection refused",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// isNotFound classifies an error as "object doesn't exist" per spec §4.1:
// NotFound/NoSuchKey codes or HTTP 404.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}

	var errResp miniogo.ErrorResponse
	if errors.As(err, &errResp) {
		if errResp.StatusCode == 404 {
			return true
		}
		switch errResp.Code {
		case "NoSuchKey", "NotFound":
			return true
		}
	}

	return false
}

// isSignatureOrChecksumError reports whether err is the class of error that
// triggers the buffered-PUT fallback on small files (spec §4.1).
func isSignatureOrChecksumError(err error) bool {
	if err == nil {
		return false
	}

	var errResp miniogo.ErrorResponse
	if errors.As(err, &errResp) {
		switch errResp.Code {
		case "SignatureDoesNotMatch", "BadDigest", "InvalidDigest", "RequestTimeTooSkewed":
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "signature") || strings.Contains(msg, "checksum")
}

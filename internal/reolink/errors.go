// SPDX-License-Identifier: MIT

package reolink

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrNotFound            = errors.New("reolink: resource not found")
	ErrAuth                = errors.New("reolink: authentication failed")
	ErrUpstreamUnavailable = errors.New("reolink: host unreachable or transport failure")
	ErrUpstreamError       = errors.New("reolink: device internal error")
	ErrBadResponse         = errors.New("reolink: invalid response format or malformed data")
	ErrTimeout             = errors.New("reolink: request timed out")
)

// APIError wraps the sentinel errors with device and transport context.
type APIError struct {
	Sentinel  error
	Operation string // API command, e.g. "Search"
	Status    int    // HTTP status, if any
	RspCode   int    // device rspCode, if any
	Detail    string // device error detail, if any
	Err       error  // nested lower-level error (e.g. net.Error)
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("reolink: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.RspCode != 0 {
		msg = fmt.Sprintf("%s (rspCode %d)", msg, e.RspCode)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}

// Device rspCodes observed across firmwares. The API is not consistent about
// which auth failure code it returns.
const (
	rspCodeMissingParam = -1
	rspCodeLoginExpired = -6
	rspCodeLoginFailed  = -7
	rspCodeNotExist     = -12
	rspCodeNotSupported = -26
)

func sentinelForRspCode(code int) error {
	switch code {
	case rspCodeLoginExpired, rspCodeLoginFailed:
		return ErrAuth
	case rspCodeNotExist:
		return ErrNotFound
	case rspCodeMissingParam, rspCodeNotSupported:
		return ErrBadResponse
	default:
		return ErrUpstreamError
	}
}

// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overcache

import (
	"errors"
	"fmt"
)

// Error class sentinels; match with errors.Is
var (
	ErrValidation = errors.New("validation failed")
	ErrNetwork    = errors.New("network error")
	ErrServer     = errors.New("server error")
)

// ErrRefreshSuperseded is returned by Store.Refresh when a mutation or a newer refresh
// cancelled it before its result could be applied
var ErrRefreshSuperseded = errors.New("refresh superseded")

// ErrEmptyResponse is wrapped in a NetworkError when a successful response carries no item
var ErrEmptyResponse = errors.New("empty response")

// DefaultErrorMessage is used when a failed response carries no error text
const DefaultErrorMessage = "Something went wrong"

// ValidationError is a local precondition failure. Nothing was written to the cache
// and no request was sent.
type ValidationError struct {
	Kind   MutationKind
	ItemID string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("%s %s: %s", e.Kind, e.ItemID, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NetworkError means the server could not be reached or the request was aborted
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ServerError is a non-2xx response. Message comes from the response body's
// "error" field when present.
type ServerError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

func (e *ServerError) Is(target error) bool { return target == ErrServer }

// Temporary reports whether retrying the same request may succeed
func (e *ServerError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

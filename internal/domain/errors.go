package domain

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned by the CRM client when the access token was rejected.
var ErrUnauthorized = errors.New("unauthorized")

// AuthError means the tenant's refresh credential is missing or was rejected.
type AuthError struct {
	HubID string
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failed for hub %s: %v", e.HubID, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchExhaustedError means a search call kept failing until the attempt budget ran out.
type FetchExhaustedError struct {
	ObjectType ObjectType
	Attempts   int
	Err        error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("search %s failed after %d attempts: %v", e.ObjectType, e.Attempts, e.Err)
}

func (e *FetchExhaustedError) Unwrap() error { return e.Err }

// LookupError wraps a failed association or contact lookup for a single record.
type LookupError struct {
	Op  string
	ID  string
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup %s for %s: %v", e.Op, e.ID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

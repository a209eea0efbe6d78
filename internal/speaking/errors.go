// Package speaking coordinates peer-to-peer speaking practice: pairwise
// requests, rooms and their participants, likes, and the derived room state
// pushed to connected clients.
package speaking

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrRoomNotFound    = fmt.Errorf("room %w", ErrNotFound)
	ErrRequestNotFound = fmt.Errorf("request %w", ErrNotFound)
	// ErrRoomEnded also matches ErrRoomNotFound: an ended room is no longer
	// joinable or viewable.
	ErrRoomEnded = fmt.Errorf("room has ended: %w", ErrRoomNotFound)

	ErrNotAuthorized       = errors.New("not authorized")
	ErrAlreadyResolved     = errors.New("request already resolved")
	ErrDuplicatePending    = errors.New("a pending request already exists between these users")
	ErrAllocationExhausted = errors.New("could not allocate a unique room code")
	ErrSelfRequest         = errors.New("cannot send a request to yourself")
	ErrSelfLike            = errors.New("cannot like yourself")
	ErrInvalidOutcome      = errors.New("invalid request outcome")
	ErrPersistenceFailed   = errors.New("persistence failed")
	ErrRoomCreationFailed  = errors.New("room creation failed")
)

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistenceFailed, err)
}

// Stable codes for clients. Order matters: more specific errors first.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrRoomEnded, "room_ended"},
	{ErrRoomNotFound, "room_not_found"},
	{ErrRequestNotFound, "request_not_found"},
	{ErrNotFound, "not_found"},
	{ErrNotAuthorized, "not_authorized"},
	{ErrAlreadyResolved, "already_resolved"},
	{ErrDuplicatePending, "duplicate_pending"},
	{ErrRoomCreationFailed, "room_creation_failed"},
	{ErrAllocationExhausted, "allocation_exhausted"},
	{ErrSelfRequest, "self_request"},
	{ErrSelfLike, "self_like"},
	{ErrInvalidOutcome, "invalid_outcome"},
	{ErrPersistenceFailed, "persistence_failed"},
}

// ErrorCode maps err to its client-facing code, or "internal" if it is not
// part of the taxonomy.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}

// Package statestore defines the durable storage contract for per-session
// adaptive state snapshots.
//
// The decision core reads a session's snapshot at session start and writes it
// back after each message. Snapshots are opaque blobs (JSON produced by the
// adaptive tracker); the store never interprets them. Access within one
// session is expected to be serialised by the caller (session-id affinity),
// so the store needs no per-session locking beyond its own consistency.
//
// Every implementation must be safe for concurrent use across sessions.
package statestore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when no snapshot exists for the session.
var ErrNotFound = errors.New("statestore: snapshot not found")

// Store persists adaptive state snapshots keyed by session id.
type Store interface {
	// Load returns the snapshot stored for sessionID, or ErrNotFound.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Save stores snapshot under sessionID, overwriting any previous snapshot.
	Save(ctx context.Context, sessionID string, snapshot []byte) error

	// Delete removes the snapshot for sessionID. Missing snapshots are a no-op.
	Delete(ctx context.Context, sessionID string) error

	// PurgeIdle removes snapshots not written since the cutoff and returns the
	// number removed. Used by the maintenance sweeper to bound table growth.
	PurgeIdle(ctx context.Context, cutoff time.Time) (int64, error)
}

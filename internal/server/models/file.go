// Package models defines server-side data models persisted in the database.
package models

import (
	"fmt"
	"time"
)

// LifecycleState is the retention state of a stored file.
type LifecycleState string

const (
	StateActive  LifecycleState = "active"
	StateTrashed LifecycleState = "trashed"
	// StatePurged marks a row whose blob is being (or has been) destroyed.
	// Rows in this state are deleted as soon as the blob is gone; one that
	// survives is finished by the next purge or sweep.
	StatePurged LifecycleState = "purged"
)

func ParseLifecycleState(s string) (LifecycleState, error) {
	switch st := LifecycleState(s); st {
	case StateActive, StateTrashed, StatePurged:
		return st, nil
	default:
		return "", fmt.Errorf("unknown lifecycle state %q", s)
	}
}

// CanTransition reports whether the state machine allows s -> to.
//
//	active  -> trashed          (soft delete)
//	trashed -> active | purged  (restore, permanent delete)
func (s LifecycleState) CanTransition(to LifecycleState) bool {
	switch s {
	case StateActive:
		return to == StateTrashed
	case StateTrashed:
		return to == StateActive || to == StatePurged
	case StatePurged:
		return false
	default:
		return false
	}
}

// Visible reports whether files in this state show up to their owner.
func (s LifecycleState) Visible() bool {
	switch s {
	case StateActive, StateTrashed:
		return true
	case StatePurged:
		return false
	default:
		return false
	}
}

// CipherParams are the per-file values needed to decrypt the blob. Both
// travel out of band next to the ciphertext.
type CipherParams struct {
	IV   []byte
	Salt []byte
}

// StoredFile is the metadata row for one uploaded, encrypted object.
type StoredFile struct {
	ID             string
	Owner          string
	DisplayName    string
	BlobLocator    string
	Cipher         CipherParams
	ContentHash    []byte
	Size           int64
	MimeType       string
	State          LifecycleState
	UploadedAt     time.Time
	LastAccessedAt time.Time
	TrashedAt      *time.Time
}

// Expired reports whether a trashed file has outlived the retention window.
func (f *StoredFile) Expired(now time.Time, retention time.Duration) bool {
	return f.State == StateTrashed && f.TrashedAt != nil && !f.TrashedAt.After(now.Add(-retention))
}

// Package dictionary keeps the VOICEVOX engine's user dictionary free of
// duplicate words.
//
// The engine only offers list, add and delete. [Reconciler.UpsertWord]
// emulates "insert or replace by normalized surface" on top of them: it lists
// every entry, deletes all whose normalized surface matches the new word, then
// adds the new word. The sequence is not atomic; the returned [UpsertResult]
// states exactly which step failed so the caller can tell "added", "added but
// stale duplicates remain" and "the word may now be missing" apart.
package dictionary

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/MrWong99/sumirevox/pkg/textnorm"
)

// Sentinel errors returned by the [Reconciler]. Match them with [errors.Is].
var (
	// ErrInvalidInput is returned when the surface or reading is empty after
	// trimming, or a delete id is empty. No remote call is made.
	ErrInvalidInput = errors.New("dictionary: invalid input")

	// ErrFetchFailed is returned when listing the remote dictionary fails.
	// Nothing was deleted or added.
	ErrFetchFailed = errors.New("dictionary: fetch failed")

	// ErrAddFailed is returned when adding the new entry fails. Previously
	// existing duplicates may already have been deleted, so the word can be
	// absent from the dictionary.
	ErrAddFailed = errors.New("dictionary: add failed")

	// ErrDeleteFailed is returned by [Reconciler.DeleteWord] when the remote
	// delete fails.
	ErrDeleteFailed = errors.New("dictionary: delete failed")
)

// Word is the remote representation of a dictionary entry, as stored by the
// engine.
type Word struct {
	Surface       string
	Pronunciation string
}

// Entry is a [Word] together with its engine-assigned id.
type Entry struct {
	ID            string `json:"id"`
	Surface       string `json:"surface"`
	Pronunciation string `json:"pronunciation"`
}

// Client is the set of primitives the remote dictionary offers. The engine
// does not enforce uniqueness of surfaces.
type Client interface {
	// List returns every entry keyed by id.
	List(ctx context.Context) (map[string]Word, error)

	// Add creates a new entry and returns its id.
	Add(ctx context.Context, surface, pronunciation string) (string, error)

	// Delete removes the entry with the given id.
	Delete(ctx context.Context, id string) error
}

// Outcome classifies a completed [Reconciler.UpsertWord] call.
type Outcome int

const (
	// OutcomeAdded means the new entry was added and every stale duplicate
	// was removed.
	OutcomeAdded Outcome = iota + 1

	// OutcomeAddedStaleRemain means the new entry was added but at least one
	// stale duplicate could not be deleted.
	OutcomeAddedStaleRemain

	// OutcomeAddFailed means adding the new entry failed after the delete
	// phase ran. The word may now be missing.
	OutcomeAddFailed
)

// String returns the machine-readable name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeAddedStaleRemain:
		return "added_stale_remain"
	case OutcomeAddFailed:
		return "add_failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome by name in JSON documents.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// DeleteFailure records one stale duplicate that could not be removed.
type DeleteFailure struct {
	ID  string
	Err error
}

// MarshalJSON renders the failure with the error as a string.
func (f DeleteFailure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}{f.ID, msg})
}

// UpsertResult reports what [Reconciler.UpsertWord] did.
type UpsertResult struct {
	// Outcome classifies the call. Zero when the call failed before the
	// delete phase.
	Outcome Outcome `json:"outcome"`

	// ID is the id of the newly added entry. Empty unless the add succeeded.
	ID string `json:"id,omitempty"`

	// Key is the normalized word that was written.
	Key textnorm.Key `json:"key"`

	// Attempted lists the ids of every stale duplicate a delete was attempted
	// for.
	Attempted []string `json:"attempted"`

	// Deleted lists the ids that were actually removed.
	Deleted []string `json:"deleted"`

	// FailedDeletes lists the ids whose delete failed, with the cause.
	FailedDeletes []DeleteFailure `json:"failed_deletes"`
}

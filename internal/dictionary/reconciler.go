package dictionary

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/sumirevox/internal/observe"
	"github.com/MrWong99/sumirevox/pkg/textnorm"
)

// Option is a functional option for configuring a [Reconciler].
type Option func(*Reconciler)

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// Reconciler enforces "at most one entry per normalized surface" on top of a
// [Client]. It holds no state of its own and is safe for concurrent use, but
// two concurrent upserts of the same word may both succeed and leave two
// entries behind; callers serialise per word when that matters.
type Reconciler struct {
	client  Client
	metrics *observe.Metrics
}

// NewReconciler creates a Reconciler backed by client.
func NewReconciler(client Client, opts ...Option) *Reconciler {
	r := &Reconciler{client: client}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// UpsertWord replaces every entry whose normalized surface equals the
// normalized rawSurface by a single new entry with the normalized reading.
//
// On [ErrAddFailed] the partially filled result is returned alongside the
// error so the caller can report which stale entries are already gone.
func (r *Reconciler) UpsertWord(ctx context.Context, rawSurface, rawReading string) (res *UpsertResult, err error) {
	ctx, span := observe.StartSpan(ctx, "dictionary.UpsertWord")
	start := time.Now()
	defer func() {
		r.metrics.RecordDictionaryOp(ctx, "upsert", err, time.Since(start))
		observe.EndSpan(span, err)
	}()

	if strings.TrimSpace(rawSurface) == "" || strings.TrimSpace(rawReading) == "" {
		return nil, fmt.Errorf("%w: word and reading must not be empty", ErrInvalidInput)
	}

	key := textnorm.KeyOf(rawSurface, rawReading)
	span.SetAttributes(attribute.String("dictionary.surface", key.Surface))
	log := observe.Logger(ctx).With("surface", key.Surface)

	existing, err := r.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	res = &UpsertResult{
		Key:           key,
		Attempted:     staleIDs(existing, key.Surface),
		Deleted:       []string{},
		FailedDeletes: []DeleteFailure{},
	}

	for _, id := range res.Attempted {
		if derr := r.client.Delete(ctx, id); derr != nil {
			log.Warn("failed to delete stale dictionary entry", "id", id, "err", derr)
			res.FailedDeletes = append(res.FailedDeletes, DeleteFailure{ID: id, Err: derr})
			continue
		}
		res.Deleted = append(res.Deleted, id)
	}
	if n := len(res.FailedDeletes); n > 0 {
		r.metrics.DictionaryFailedDeletes.Add(ctx, int64(n))
	}

	id, err := r.client.Add(ctx, key.Surface, key.Pronunciation)
	if err != nil {
		res.Outcome = OutcomeAddFailed
		log.Error("failed to add dictionary entry", "deleted", len(res.Deleted), "err", err)
		return res, fmt.Errorf("%w: %w", ErrAddFailed, err)
	}
	res.ID = id

	res.Outcome = OutcomeAdded
	if len(res.FailedDeletes) > 0 {
		res.Outcome = OutcomeAddedStaleRemain
	}
	log.Info("dictionary entry upserted",
		"id", id,
		"outcome", res.Outcome.String(),
		"replaced", len(res.Deleted),
	)
	return res, nil
}

// DeleteWord removes the entry with the given id.
func (r *Reconciler) DeleteWord(ctx context.Context, id string) (err error) {
	ctx, span := observe.StartSpan(ctx, "dictionary.DeleteWord")
	start := time.Now()
	defer func() {
		r.metrics.RecordDictionaryOp(ctx, "delete", err, time.Since(start))
		observe.EndSpan(span, err)
	}()

	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id must not be empty", ErrInvalidInput)
	}
	if err := r.client.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	observe.Logger(ctx).Info("dictionary entry deleted", "id", id)
	return nil
}

// List returns every remote entry sorted by surface, then id.
func (r *Reconciler) List(ctx context.Context) (entries []Entry, err error) {
	ctx, span := observe.StartSpan(ctx, "dictionary.List")
	start := time.Now()
	defer func() {
		r.metrics.RecordDictionaryOp(ctx, "list", err, time.Since(start))
		observe.EndSpan(span, err)
	}()

	words, err := r.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	entries = make([]Entry, 0, len(words))
	for id, w := range words {
		entries = append(entries, Entry{ID: id, Surface: w.Surface, Pronunciation: w.Pronunciation})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Or(cmp.Compare(a.Surface, b.Surface), cmp.Compare(a.ID, b.ID))
	})
	return entries, nil
}

// staleIDs returns, in a stable order, the ids of every entry whose
// normalized surface equals surface.
func staleIDs(words map[string]Word, surface string) []string {
	ids := []string{}
	for id, w := range words {
		if textnorm.Surface(w.Surface) == surface {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Extractor is the external document-understanding collaborator. It receives
// the original file bytes and returns a fully populated record or an error.
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte, contentType string) (*Record, error)
	ModelID() string
}

// Queue owns the entry list and drains it through the extractor, strictly one
// entry at a time in FIFO order. All mutation of entries goes through the
// queue; readers take snapshots.
type Queue struct {
	mu         sync.Mutex
	entries    []*Entry
	extracting bool
	wake       chan struct{}

	extractor Extractor
	now       func() time.Time
	salt      func() string
}

// NewQueue creates a queue draining into the given extractor.
func NewQueue(extractor Extractor) *Queue {
	return &Queue{
		wake:      make(chan struct{}, 1),
		extractor: extractor,
		now:       time.Now,
		salt:      uuid.NewString,
	}
}

// signal wakes the drain loop. The buffered channel coalesces signals; the
// loop re-checks for work after every settle, so a signal is never lost.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue until the context is cancelled. Call it from its own
// goroutine. The inner loop keeps claiming work until none is left, so
// entries added while an extraction is in flight are picked up without a
// fresh signal.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}
		for {
			entry, data := q.claimNext()
			if entry == nil {
				break
			}
			q.process(ctx, entry, data)
		}
	}
}

// claimNext transitions the oldest queued entry to extracting, if no other
// entry is extracting, and returns it with a private copy of its bytes.
func (q *Queue) claimNext() (*Entry, []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.extracting {
		return nil, nil
	}
	for _, e := range q.entries {
		if e.Status != StatusQueued {
			continue
		}
		e.Status = StatusExtracting
		e.UpdatedAt = q.now()
		q.extracting = true
		return e, e.Data
	}
	return nil, nil
}

// process runs one extraction and settles the entry. Failures are recorded on
// the entry and never halt the queue.
func (q *Queue) process(ctx context.Context, entry *Entry, data []byte) {
	start := q.now()
	var rec *Record
	var err error
	if len(data) == 0 {
		err = ErrNoOriginalBytes
	} else {
		rec, err = q.extractor.Extract(ctx, entry.Filename, data, entry.ContentType)
	}
	elapsed := q.now().Sub(start)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.extracting = false
	entry.UpdatedAt = q.now()
	if err != nil {
		kind := ClassifyFailure(err)
		entry.Status = StatusFailed
		entry.Failure = kind
		entry.Error = userMessage(kind)
		entry.Debug = &DebugInfo{
			ProcessingTimeMs: elapsed.Milliseconds(),
			ModelUsed:        q.extractor.ModelID(),
			RawError:         err.Error(),
		}
		slog.Error("extraction failed",
			"entry", entry.ID,
			"filename", entry.Filename,
			"failure", string(kind),
			"elapsed_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return
	}
	entry.Status = StatusSucceeded
	entry.Record = rec
	entry.Error = ""
	entry.Failure = ""
	entry.Debug = nil
	slog.Info("extraction succeeded",
		"entry", entry.ID,
		"filename", entry.Filename,
		"invoice", rec.Invoice.InvoiceNumber,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

func identity(filename string, lastModified int64) string {
	return fmt.Sprintf("%s-%d", filename, lastModified)
}

// Enqueue adds an uploaded file. The logical identity is filename plus
// last-modified timestamp: a duplicate upload is silently ignored and the
// existing entry ID is returned. The one exception is an entry restored
// without original bytes; such an upload re-attaches the bytes, and re-queues
// the entry unless it already succeeded.
func (q *Queue) Enqueue(filename string, lastModified int64, contentType string, data []byte) string {
	q.mu.Lock()
	id := identity(filename, lastModified)
	for _, e := range q.entries {
		if e.ID != id && identity(e.Filename, e.LastModified) != id {
			continue
		}
		if e.HasOriginalBytes() {
			q.mu.Unlock()
			return e.ID
		}
		e.Data = data
		e.ContentType = contentType
		e.UpdatedAt = q.now()
		if e.Status != StatusSucceeded {
			e.Status = StatusQueued
			e.Error = ""
			e.Failure = ""
			e.Debug = nil
		}
		existingID := e.ID
		q.mu.Unlock()
		q.signal()
		return existingID
	}
	now := q.now()
	entry := &Entry{
		ID:           id,
		Filename:     filename,
		LastModified: lastModified,
		ContentType:  contentType,
		Data:         data,
		Status:       StatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	q.entries = append(q.entries, entry)
	q.mu.Unlock()
	q.signal()
	return id
}

// Reenqueue creates a distinct new entry from a settled one, salted with a
// UUID so the identity rule does not reject it. This is the only retry path;
// nothing retries automatically.
func (q *Queue) Reenqueue(id string) (string, error) {
	q.mu.Lock()
	var src *Entry
	for _, e := range q.entries {
		if e.ID == id {
			src = e
			break
		}
	}
	if src == nil {
		q.mu.Unlock()
		return "", fmt.Errorf("entry not found: %s", id)
	}
	if !src.HasOriginalBytes() {
		q.mu.Unlock()
		return "", ErrNoOriginalBytes
	}
	now := q.now()
	entry := &Entry{
		ID:           fmt.Sprintf("%s-%s", identity(src.Filename, src.LastModified), q.salt()),
		Filename:     src.Filename,
		LastModified: src.LastModified,
		ContentType:  src.ContentType,
		Data:         src.Data,
		Status:       StatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	q.entries = append(q.entries, entry)
	q.mu.Unlock()
	q.signal()
	return entry.ID, nil
}

// Snapshot returns a copy of the entry list. The copies share the immutable
// byte slices and record pointers but detach from future queue mutation, so
// multi-step composition work can proceed against a stable view.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	return out
}

// Succeeded returns snapshots of the succeeded entries, oldest first.
func (q *Queue) Succeeded() []Entry {
	all := q.Snapshot()
	out := all[:0:0]
	for _, e := range all {
		if e.Status == StatusSucceeded && e.Record != nil {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get returns a snapshot of one entry.
func (q *Queue) Get(id string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.ID == id {
			return *e, true
		}
	}
	return Entry{}, false
}

// UpdateRecord replaces the record of a succeeded entry wholesale after
// validating it and recomputing the derived figures. A validation failure
// leaves the stored record untouched.
func (q *Queue) UpdateRecord(id string, rec Record) (Entry, error) {
	if err := ValidateRecord(&rec); err != nil {
		return Entry{}, err
	}
	ApplyCalculations(&rec)

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.ID != id {
			continue
		}
		if e.Status != StatusSucceeded {
			return Entry{}, fmt.Errorf("entry %s is not in a succeeded state", id)
		}
		e.Record = &rec
		e.UpdatedAt = q.now()
		return *e, nil
	}
	return Entry{}, fmt.Errorf("entry not found: %s", id)
}

// Clear removes every entry. In-flight extraction is not interrupted; its
// result is discarded because the entry is gone from the list.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
}

// Restore loads entries from a saved session. Restored entries carry no
// original bytes; an entry persisted mid-extraction comes back failed since
// the call it was waiting on is gone.
func (q *Queue) Restore(entries []Entry) {
	q.mu.Lock()
	for i := range entries {
		e := entries[i]
		e.Data = nil
		if e.Status == StatusExtracting || e.Status == StatusQueued {
			e.Status = StatusFailed
			e.Failure = FailureUnknown
			e.Error = userMessage(FailureUnknown)
		}
		q.entries = append(q.entries, &e)
	}
	q.mu.Unlock()
	q.signal()
}

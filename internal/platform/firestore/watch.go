package firestore

import (
	"context"
	"errors"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// WatchEvent carries one consistent result set produced by a query snapshot
// listener. Err is set when the stream terminates abnormally; no further
// events follow an error.
type WatchEvent[T any] struct {
	Documents []Document[T]
	Err       error
}

// WatchHandle owns a running snapshot listener. Stop cancels the listener and
// is safe to call multiple times; Events is closed once the listener exits.
type WatchHandle[T any] struct {
	events   chan WatchEvent[T]
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// Events returns the stream of snapshot events.
func (h *WatchHandle[T]) Events() <-chan WatchEvent[T] {
	return h.events
}

// Stop cancels the listener. Pending events may still be drained from Events.
func (h *WatchHandle[T]) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()
	})
}

// Watch starts a snapshot listener on the query built from the repository's
// collection and emits the full decoded result set on every change.
func (r *BaseRepository[T]) Watch(ctx context.Context, build QueryBuilder) (*WatchHandle[T], error) {
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}

	query := coll.Query
	if build != nil {
		query = build(query)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	handle := &WatchHandle[T]{
		events: make(chan WatchEvent[T], 1),
		cancel: cancel,
	}

	go r.watchLoop(watchCtx, query, handle)

	return handle, nil
}

func (r *BaseRepository[T]) watchLoop(ctx context.Context, query firestore.Query, handle *WatchHandle[T]) {
	defer close(handle.events)

	snapshots := query.Snapshots(ctx)
	defer snapshots.Stop()

	for {
		snapshot, err := snapshots.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) || ctx.Err() != nil {
				return
			}
			handle.emit(ctx, WatchEvent[T]{Err: WrapError(r.op("watch"), err)})
			return
		}

		docs, err := r.collectSnapshot(ctx, snapshot)
		if err != nil {
			handle.emit(ctx, WatchEvent[T]{Err: err})
			return
		}
		if !handle.emit(ctx, WatchEvent[T]{Documents: docs}) {
			return
		}
	}
}

func (r *BaseRepository[T]) collectSnapshot(ctx context.Context, snapshot *firestore.QuerySnapshot) ([]Document[T], error) {
	defer snapshot.Documents.Stop()

	var docs []Document[T]
	for {
		docSnap, err := snapshot.Documents.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(r.op("watch"), err)
		}
		decoded, err := r.decodeDocument(ctx, docSnap)
		if err != nil {
			return nil, WrapError(r.op("watch"), err)
		}
		docs = append(docs, decoded)
	}
	return docs, nil
}

// emit delivers the event unless the listener context is already cancelled.
// Slow consumers block the listener rather than dropping events.
func (h *WatchHandle[T]) emit(ctx context.Context, event WatchEvent[T]) bool {
	select {
	case h.events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

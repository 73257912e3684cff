package firestore

import (
	pfirestore "github.com/designdesk/api/internal/platform/firestore"
	"github.com/designdesk/api/internal/repositories"
)

// documentWatcher adapts a platform watch handle into the repository Watcher
// contract, decoding stored documents into domain values as events arrive.
type documentWatcher[D any, T any] struct {
	events chan repositories.WatchEvent[T]
	handle *pfirestore.WatchHandle[D]
}

func newDocumentWatcher[D any, T any](handle *pfirestore.WatchHandle[D], decode func(id string, doc D) T) *documentWatcher[D, T] {
	w := &documentWatcher[D, T]{
		events: make(chan repositories.WatchEvent[T], 1),
		handle: handle,
	}

	go func() {
		defer close(w.events)
		for event := range handle.Events() {
			if event.Err != nil {
				w.events <- repositories.WatchEvent[T]{Err: event.Err}
				return
			}
			items := make([]T, 0, len(event.Documents))
			for _, doc := range event.Documents {
				items = append(items, decode(doc.ID, doc.Data))
			}
			w.events <- repositories.WatchEvent[T]{Items: items}
		}
	}()

	return w
}

// Events returns the stream of decoded snapshot events.
func (w *documentWatcher[D, T]) Events() <-chan repositories.WatchEvent[T] {
	return w.events
}

// Stop cancels the underlying listener.
func (w *documentWatcher[D, T]) Stop() {
	w.handle.Stop()
}

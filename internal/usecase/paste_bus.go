package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/visualmatch/console/internal/domain"
)

// PasteItem is one entry of a clipboard paste. Only items with an image
// content type and a file payload are treated as uploads.
type PasteItem struct {
	ContentType string
	File        *domain.ImageFile
	Text        string
}

// PasteListener handles one paste event
type PasteListener func(ctx context.Context, items []PasteItem) error

// PasteSource delivers process-wide paste events
type PasteSource interface {
	Subscribe(listener PasteListener) (unsubscribe func())
}

// PasteBus is the in-process clipboard hub. Paste events are not scoped to a
// drop target, so every subscriber sees every paste.
type PasteBus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]PasteListener
}

// NewPasteBus creates an empty hub
func NewPasteBus() *PasteBus {
	return &PasteBus{listeners: make(map[int]PasteListener)}
}

// Subscribe registers listener. The returned func removes it and is safe to call more than once.
func (b *PasteBus) Subscribe(listener PasteListener) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = listener
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers items to every listener and returns how many were notified
func (b *PasteBus) Publish(ctx context.Context, items []PasteItem) (int, error) {
	b.mu.RLock()
	listeners := make([]PasteListener, 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.RUnlock()

	var errs []error
	for _, l := range listeners {
		if err := l(ctx, items); err != nil {
			errs = append(errs, err)
		}
	}
	return len(listeners), errors.Join(errs...)
}

// Listeners returns the current subscriber count
func (b *PasteBus) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

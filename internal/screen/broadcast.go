// Package screen содержит держатели состояния экранов курьера.
// Экран (CLI, HTTP-агент или UI) подписывается на снимки состояния и вызывает действия;
// все изменения состояния проходят через мьютекс держателя.
package screen

import (
	"errors"
	"sync"
)

var (
	// ErrClosed возвращается действиями закрытого держателя.
	ErrClosed = errors.New("screen is closed")
	// ErrSuperseded возвращается загрузкой, которую отменила более новая.
	ErrSuperseded = errors.New("load superseded by a newer request")
)

const (
	snapshotBuffer = 1
	eventBuffer    = 16
)

// broadcaster раздаёт значения подписчикам, не блокируя пишущего.
// При переполнении буфера самое старое значение вытесняется.
type broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	next   int
	buffer int
	closed bool
}

func newBroadcaster[T any](buffer int) *broadcaster[T] {
	return &broadcaster[T]{subs: make(map[int]chan T), buffer: buffer}
}

func (b *broadcaster[T]) subscribe(initial *T) (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	if initial != nil {
		ch <- *initial
	}

	id := b.next
	b.next++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

func (b *broadcaster[T]) publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

func (b *broadcaster[T]) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

func closedDone() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func failed(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	close(ch)
	return ch
}

// Package eventbus is a small typed in-process publish/subscribe hub used to
// decouple request handling from logging, metrics and tracing.
package eventbus

import (
	"context"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
)

// Handler receives events of type T.
type Handler[T any] func(context.Context, T)

type subscription struct {
	id uint64
	fn func(context.Context, any)
}

// Bus is a simple in-process event dispatcher. Handlers run synchronously on
// the publishing goroutine, in subscription order.
type Bus struct {
	mu       sync.RWMutex
	seq      uint64
	handlers map[reflect.Type][]subscription
}

// New returns an empty Bus.
func New() *Bus { return &Bus{handlers: make(map[reflect.Type][]subscription)} }

func (b *Bus) subscribe(t reflect.Type, fn func(context.Context, any)) (unsubscribe func()) {
	b.mu.Lock()
	b.seq++
	id := b.seq
	b.handlers[t] = append(b.handlers[t], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			// clone so an emit already holding the old slice is unaffected
			rest := slices.DeleteFunc(slices.Clone(b.handlers[t]), func(s subscription) bool { return s.id == id })
			if len(rest) == 0 {
				delete(b.handlers, t)
				return
			}
			b.handlers[t] = rest
		})
	}
}

// emit dispatches e to all handlers of its dynamic type. A panicking handler
// is logged and skipped; it never reaches the publisher.
func (b *Bus) emit(ctx context.Context, t reflect.Type, e any) {
	b.mu.RLock()
	hs := b.handlers[t]
	b.mu.RUnlock()
	for _, s := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.ErrorContext(ctx, "event handler panicked", "event", t.String(), "panic", r)
				}
			}()
			s.fn(ctx, e)
		}()
	}
}

// Len reports how many handlers are subscribed to events of type T.
func Len[T any](b *Bus) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[typeOf[T]()])
}

func typeOf[T any]() reflect.Type { return reflect.TypeOf((*T)(nil)).Elem() }

var global atomic.Pointer[Bus]

// Use installs b as the process-wide bus; nil turns publishing off.
func Use(b *Bus) { global.Store(b) }

// Current returns the global bus, or nil when publishing is disabled.
func Current() *Bus { return global.Load() }

// Subscribe adds h to the process-wide bus. With no bus installed it is a
// no-op.
func Subscribe[T any](h Handler[T]) (unsubscribe func()) {
	if b := global.Load(); b != nil {
		return b.subscribe(typeOf[T](), func(ctx context.Context, v any) { h(ctx, v.(T)) })
	}
	return func() {}
}

// Publish hands e to every handler subscribed to T.
func Publish[T any](ctx context.Context, e T) {
	if b := global.Load(); b != nil {
		b.emit(ctx, typeOf[T](), e)
	}
}

// Package generic holds small type-parameterized utilities.
package generic

import "sync"

// Pool is a typed wrapper around sync.Pool. The engine recycles population
// buffers through it so steady-state ticks allocate nothing.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T) T
}

// NewPool creates a pool producing fresh values with generate.
func NewPool[T any](generate func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return generate()
			},
		},
	}
}

// NewResetPool creates a pool that passes every value through reset on Put,
// e.g. to truncate a slice before it is reused.
func NewResetPool[T any](generate func() T, reset func(T) T) *Pool[T] {
	p := NewPool(generate)
	p.reset = reset
	return p
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(value T) {
	if p.reset != nil {
		value = p.reset(value)
	}
	p.pool.Put(value)
}

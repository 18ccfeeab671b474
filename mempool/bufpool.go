// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package mempool pools the buffers outbound packets are encoded into.
package mempool

import (
	"bytes"
	"sync"
)

// DefaultMaxRetained is the largest buffer capacity the default pool keeps. A
// publish with a large payload grows its buffer past this, and that buffer is
// left to the garbage collector.
const DefaultMaxRetained = 64 * 1024

var bufPool = New(DefaultMaxRetained)

// GetBuffer takes a buffer from the default pool.
func GetBuffer() *bytes.Buffer { return bufPool.Get() }

// PutBuffer returns a buffer to the default pool.
func PutBuffer(x *bytes.Buffer) { bufPool.Put(x) }

// Pool is a pool of reusable encode buffers.
type Pool struct {
	pool sync.Pool
	max  int // buffers with a larger capacity are not retained. 0 is unlimited.
}

// New returns a buffer pool retaining buffers up to max bytes of capacity. If
// max <= 0, every buffer is retained.
func New(max int) *Pool {
	if max < 0 {
		max = 0
	}

	return &Pool{
		pool: sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
		max: max,
	}
}

// Get a buffer from the pool.
func (p *Pool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

// Put resets the buffer and returns it to the pool, unless it has grown beyond
// the retained capacity.
func (p *Pool) Put(x *bytes.Buffer) {
	if p.max > 0 && x.Cap() > p.max {
		return
	}

	x.Reset()
	p.pool.Put(x)
}

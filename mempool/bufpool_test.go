// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mempool

import (
	"bytes"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	require.Equal(t, 1000, New(1000).max)
	require.Equal(t, 0, New(0).max)
	require.Equal(t, 0, New(-1).max)
}

func TestPoolResets(t *testing.T) {
	defer debug.SetGCPercent(debug.SetGCPercent(-1))

	p := New(0)
	buf := p.Get()
	buf.Write(bytes.Repeat([]byte{'a'}, 101))

	p.Put(buf)
	buf = p.Get()
	require.Equal(t, 0, buf.Len())
}

func TestPoolDropsOversized(t *testing.T) {
	defer debug.SetGCPercent(debug.SetGCPercent(-1))

	p := New(100)
	buf := p.Get()
	buf.Write(bytes.Repeat([]byte{'a'}, 101))

	p.Put(buf)
	buf = p.Get()
	require.Equal(t, 0, buf.Len())
	require.Equal(t, 0, buf.Cap())
}

func TestDefaultPool(t *testing.T) {
	buf := GetBuffer()
	require.NotNil(t, buf)
	buf.WriteString("hello")
	PutBuffer(buf)

	buf = GetBuffer()
	require.Equal(t, 0, buf.Len())
	PutBuffer(buf)
}

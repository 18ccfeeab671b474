// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 J. Blake / mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mochi-mqtt/conduit/packets"
)

var (
	// ErrAckTimeout indicates the peer did not answer an exchange before its deadline.
	ErrAckTimeout = errors.New("acknowledgement timed out")

	// ErrInflightClosed is used to reject exchanges when an inflight registry is closed without a cause.
	ErrInflightClosed = errors.New("inflight registry closed")
)

// Exchange is an outstanding request awaiting a packet with the same packet id.
// Exactly one of the completion or expiry paths runs for each exchange.
type Exchange struct {
	Type       byte   // the packet type expected in answer, informational only
	PacketID   uint16 // the packet id the answer must carry
	inflight   *Inflight
	timer      *time.Timer
	done       chan struct{}
	pk         packets.Packet
	err        error
	onComplete func(packets.Packet)
	onExpire   func(error)
}

// Wait blocks until the exchange is answered, expires, or the context is done. If
// the context ends first the exchange is withdrawn from the registry.
func (ex *Exchange) Wait(ctx context.Context) (packets.Packet, error) {
	select {
	case <-ex.done:
		return ex.pk, ex.err
	case <-ctx.Done():
	}

	ex.inflight.withdraw(ex)

	select {
	case <-ex.done:
		return ex.pk, ex.err
	default:
		return nil, ctx.Err()
	}
}

// Cancel withdraws the exchange from the registry without resolving it.
func (ex *Exchange) Cancel() {
	ex.inflight.withdraw(ex)
}

func (ex *Exchange) resolve(pk packets.Packet) {
	ex.pk = pk
	if ex.onComplete != nil {
		ex.onComplete(pk)
	}
	close(ex.done)
}

func (ex *Exchange) reject(err error) {
	ex.err = err
	if ex.onExpire != nil {
		ex.onExpire(err)
	}
	close(ex.done)
}

// Inflight correlates outstanding exchanges with the packets that answer them,
// keyed on packet id. At most one exchange may be outstanding per packet id.
type Inflight struct {
	sync.Mutex
	internal map[uint16]*Exchange // outstanding exchanges keyed on packet id
	closed   error                // the cause the registry was closed with, if any
}

// NewInflight returns a new instance of an Inflight registry.
func NewInflight() *Inflight {
	return &Inflight{
		internal: map[uint16]*Exchange{},
	}
}

// Register adds an exchange awaiting a packet with the given id. The exchange
// expires with ErrAckTimeout once timeout elapses; a timeout of 0 never expires.
func (i *Inflight) Register(expect byte, id uint16, timeout time.Duration) (*Exchange, error) {
	ex := &Exchange{
		Type:     expect,
		PacketID: id,
		inflight: i,
		done:     make(chan struct{}),
	}

	if err := i.add(ex, timeout); err != nil {
		return nil, err
	}

	return ex, nil
}

// RegisterFunc adds an exchange in callback form. onComplete is called from within
// Feed with the answering packet; onExpire is called with ErrAckTimeout from the
// timer, or with the close cause if the registry is closed first. Either may be nil.
func (i *Inflight) RegisterFunc(expect byte, id uint16, timeout time.Duration, onComplete func(packets.Packet), onExpire func(error)) error {
	return i.add(&Exchange{
		Type:       expect,
		PacketID:   id,
		inflight:   i,
		done:       make(chan struct{}),
		onComplete: onComplete,
		onExpire:   onExpire,
	}, timeout)
}

func (i *Inflight) add(ex *Exchange, timeout time.Duration) error {
	i.Lock()
	defer i.Unlock()

	if i.closed != nil {
		return i.closed
	}

	if _, ok := i.internal[ex.PacketID]; ok {
		return packets.ErrPacketIdentifierInUse
	}

	i.internal[ex.PacketID] = ex
	if timeout > 0 {
		ex.timer = time.AfterFunc(timeout, func() {
			if i.take(ex) {
				ex.reject(ErrAckTimeout)
			}
		})
	}

	return nil
}

// take removes ex from the registry, returning true if it was still outstanding.
func (i *Inflight) take(ex *Exchange) bool {
	i.Lock()
	defer i.Unlock()

	if i.internal[ex.PacketID] != ex {
		return false
	}

	delete(i.internal, ex.PacketID)
	return true
}

func (i *Inflight) withdraw(ex *Exchange) {
	if i.take(ex) && ex.timer != nil {
		ex.timer.Stop()
	}
}

// Feed offers a packet to the registry. If an exchange is outstanding for the
// packet's id it is resolved with the packet and Feed returns true.
func (i *Inflight) Feed(pk packets.Packet) bool {
	id, ok := packets.PacketID(pk)
	if !ok {
		return false
	}

	i.Lock()
	ex, ok := i.internal[id]
	if ok {
		delete(i.internal, id)
	}
	i.Unlock()

	if !ok {
		return false
	}

	if ex.timer != nil {
		ex.timer.Stop()
	}

	ex.resolve(pk)
	return true
}

// Has returns true if an exchange is outstanding for the packet id.
func (i *Inflight) Has(id uint16) bool {
	i.Lock()
	defer i.Unlock()
	_, ok := i.internal[id]
	return ok
}

// Len returns the number of outstanding exchanges.
func (i *Inflight) Len() int {
	i.Lock()
	defer i.Unlock()
	return len(i.internal)
}

// Close rejects every outstanding exchange with err and refuses any further
// registrations. Pending timers are stopped before Close returns.
func (i *Inflight) Close(err error) {
	if err == nil {
		err = ErrInflightClosed
	}

	i.Lock()
	if i.closed != nil {
		i.Unlock()
		return
	}

	i.closed = err
	pending := make([]*Exchange, 0, len(i.internal))
	for id, ex := range i.internal {
		pending = append(pending, ex)
		delete(i.internal, id)
	}
	i.Unlock()

	for _, ex := range pending {
		if ex.timer != nil {
			ex.timer.Stop()
		}
		ex.reject(err)
	}
}

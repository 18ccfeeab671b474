// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jinzhu/copier"
	"github.com/rs/xid"

	"github.com/mochi-mqtt/conduit/hooks/storage"
	"github.com/mochi-mqtt/conduit/mempool"
	"github.com/mochi-mqtt/conduit/packets"
	"github.com/mochi-mqtt/conduit/system"
)

var (
	ErrClientDisconnect = errors.New("client disconnected") // the client sent a disconnect packet
	ErrConnectionClosed = errors.New("connection not open") // the connection is closed or was never opened

	// ErrDeliveryFailed indicates an outbound qos handshake leg ran out of retries.
	ErrDeliveryFailed = errors.New("delivery failed: acknowledgement retries exhausted")
)

// ClientState is the lifecycle state of a client connection.
type ClientState uint32

const (
	StateIdle         ClientState = iota // awaiting the connect packet
	StateConnected                       // connect accepted
	StateDisconnected                    // terminal
)

// String returns a readable name for the state.
func (s ClientState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Clients contains a map of the clients known by the server.
type Clients struct {
	internal     map[string]*Client // clients known by the server, keyed on client id.
	sync.RWMutex                    // mutex
}

// NewClients returns an instance of Clients.
func NewClients() *Clients {
	return &Clients{
		internal: make(map[string]*Client),
	}
}

// Add adds a new client to the clients map, keyed on client id.
func (cl *Clients) Add(val *Client) {
	cl.Lock()
	defer cl.Unlock()
	cl.internal[val.ID] = val
}

// GetAll returns all the clients.
func (cl *Clients) GetAll() map[string]*Client {
	cl.RLock()
	defer cl.RUnlock()
	m := map[string]*Client{}
	for k, v := range cl.internal {
		m[k] = v
	}
	return m
}

// Get returns the value of a client if it exists.
func (cl *Clients) Get(id string) (*Client, bool) {
	cl.RLock()
	defer cl.RUnlock()
	val, ok := cl.internal[id]
	return val, ok
}

// Len returns the length of the clients map.
func (cl *Clients) Len() int {
	cl.RLock()
	defer cl.RUnlock()
	val := len(cl.internal)
	return val
}

// Delete removes a client from the internal map.
func (cl *Clients) Delete(id string) {
	cl.Lock()
	defer cl.Unlock()
	delete(cl.internal, id)
}

// remove deletes the client only if it is still the one registered under its id,
// so a stopping client never removes the session which took it over.
func (cl *Clients) remove(val *Client) bool {
	cl.Lock()
	defer cl.Unlock()
	if cl.internal[val.ID] != val {
		return false
	}
	delete(cl.internal, val.ID)
	return true
}

// GetByListener returns clients matching a listener id.
func (cl *Clients) GetByListener(id string) []*Client {
	cl.RLock()
	defer cl.RUnlock()
	clients := make([]*Client, 0, len(cl.internal))
	for _, v := range cl.internal {
		if v.Net.Listener == id && !v.Closed() {
			clients = append(clients, v)
		}
	}
	return clients
}

// ClientConnection contains the connection transport and metadata for the client.
type ClientConnection struct {
	Conn     net.Conn // the net.Conn used to establish the connection
	Remote   string   // the remote address of the client
	Listener string   // listener id of the client
}

// ops contains server values which can be propagated to clients.
type ops struct {
	options *Options     // a pointer to the server options and capabilities
	info    *system.Info // pointers to server system info
	hooks   *Hooks       // pointer to the server hooks
	log     *slog.Logger // a structured logger for the client
	clients *Clients     // the server clients registry, nil for a standalone client
}

// errCause boxes a stop cause so it can be held in an atomic.Value.
type errCause struct {
	err error
}

// Client is the protocol state machine for a single connection.
type Client struct {
	Details   ConnectDetails   // the connect details, set once the client is accepted
	ID        string           // the client id
	Net       ClientConnection // network connection state
	ops       *ops             // ops provides a reference to server ops
	decoder   *packets.Decoder // stream decoder for inbound bytes
	inbound   *Inflight        // exchanges keyed on peer packet ids (pubrel)
	outbound  *Inflight        // exchanges keyed on our packet ids (puback, pubrec, pubcomp)
	keepalive *time.Timer      // fires when the peer has been silent too long
	state     uint32           // the ClientState, accessed atomically
	packetID  uint32           // the last outbound packet id issued
	packetIDs map[uint16]bool  // outbound packet ids held by unfinished deliveries
	idMu      sync.Mutex       // guards packetID and packetIDs
	stopCause atomic.Value     // the errCause the client stopped with
	stopOnce  sync.Once        // only stop once
	done      chan struct{}    // closed when the client stops
	writeMu   sync.Mutex       // serialises frame writes
	sync.RWMutex               // guards Details and the keepalive timer
}

// newClient returns a new instance of Client. This is almost exclusively used by Server
// for creating new clients, but it lives here because it's not dependent.
func newClient(c net.Conn, o *ops) *Client {
	cl := &Client{
		Net: ClientConnection{
			Conn: c,
		},
		ops: o,
		decoder: &packets.Decoder{
			MaxPacketSize: int(o.options.Capabilities.MaximumPacketSize),
		},
		inbound:   NewInflight(),
		outbound:  NewInflight(),
		packetIDs: make(map[uint16]bool),
		done:      make(chan struct{}),
	}

	if c != nil && c.RemoteAddr() != nil {
		cl.Net.Remote = c.RemoteAddr().String()
	}

	return cl
}

// State returns the current lifecycle state of the client.
func (cl *Client) State() ClientState {
	return ClientState(atomic.LoadUint32(&cl.state))
}

// Closed returns true if the client has stopped.
func (cl *Client) Closed() bool {
	return cl.State() == StateDisconnected
}

// Done returns a channel which is closed when the client stops.
func (cl *Client) Done() <-chan struct{} {
	return cl.done
}

// StopCause returns the reason the client stopped, if any.
func (cl *Client) StopCause() error {
	if v, ok := cl.stopCause.Load().(errCause); ok {
		return v.err
	}
	return nil
}

// Will returns the will message the client registered, unless the connection ended
// with a clean disconnect, in which case the will must not be published.
func (cl *Client) Will() *packets.Message {
	if errors.Is(cl.StopCause(), ErrClientDisconnect) {
		return nil
	}

	cl.RLock()
	defer cl.RUnlock()
	return cl.Details.Will
}

// Record returns a storable snapshot of the client connection.
func (cl *Client) Record() storage.Client {
	cl.RLock()
	defer cl.RUnlock()

	in := storage.Client{
		ID:        cl.ID,
		T:         storage.ClientKey,
		Connected: time.Now().Unix(),
	}
	_ = copier.CopyWithOption(&in, &cl.Details, copier.Option{DeepCopy: true})
	return in
}

// NextPacketID reserves and returns the next free outbound packet id, wrapping from
// the maximum back to 1. A packet id of 0 is never issued, and ids still held by an
// unfinished delivery are skipped. The id stays reserved until ReleasePacketID.
func (cl *Client) NextPacketID() (uint16, error) {
	max := uint32(cl.ops.options.Capabilities.MaximumPacketID)
	if max == 0 {
		max = maxPacketID
	}

	cl.idMu.Lock()
	defer cl.idMu.Unlock()

	for n := uint32(0); n < max; n++ {
		cl.packetID++
		if cl.packetID > max {
			cl.packetID = 1
		}

		id := uint16(cl.packetID)
		if cl.packetIDs[id] || cl.outbound.Has(id) {
			continue
		}

		cl.packetIDs[id] = true
		return id, nil
	}

	return 0, packets.ErrQuotaExceeded
}

// ReleasePacketID frees an outbound packet id reserved by NextPacketID.
func (cl *Client) ReleasePacketID(id uint16) {
	cl.idMu.Lock()
	defer cl.idMu.Unlock()
	delete(cl.packetIDs, id)
}

// Read reads bytes from the connection, decodes them, and processes each packet in
// arrival order until the connection fails, the peer disconnects, or the client is
// stopped. The returned error is the reason reading ended.
func (cl *Client) Read() error {
	if cl.Net.Conn == nil {
		return ErrConnectionClosed
	}

	if d := cl.ops.options.ConnectTimeout; d > 0 && cl.State() == StateIdle {
		_ = cl.Net.Conn.SetReadDeadline(time.Now().Add(time.Duration(d) * time.Second))
	}

	buf := make([]byte, cl.ops.options.ClientNetReadBufferSize)
	for {
		n, err := cl.Net.Conn.Read(buf)
		if n > 0 {
			atomic.AddInt64(&cl.ops.info.BytesReceived, int64(n))
			pks, derr := cl.decoder.Decode(buf[:n])
			for _, pk := range pks {
				if perr := cl.receive(pk); perr != nil {
					return perr
				}
			}

			if derr != nil {
				if errors.Is(derr, packets.ErrInvalidProtocolLevel) && cl.State() == StateIdle {
					_ = cl.reject(packets.ErrUnacceptableProtocolVersion) // [MQTT-3.1.2-2]
				}
				return derr
			}
		}

		if err != nil {
			if cause := cl.StopCause(); cause != nil {
				return cause
			}
			return err
		}
	}
}

// receive processes a single inbound packet according to the client state.
func (cl *Client) receive(pk packets.Packet) error {
	atomic.AddInt64(&cl.ops.info.PacketsReceived, 1)
	cl.ops.hooks.OnPacketRead(cl, pk)

	switch cl.State() {
	case StateIdle:
		connect, ok := pk.(*packets.ConnectPacket)
		if !ok {
			return packets.ErrProtocolViolationRequireFirstConnect // [MQTT-3.1.0-1]
		}
		return cl.connect(connect)
	case StateDisconnected:
		return ErrConnectionClosed
	}

	cl.refreshKeepalive() // [MQTT-3.1.2-23]

	switch p := pk.(type) {
	case *packets.PublishPacket:
		return cl.processPublish(p)
	case *packets.PubackPacket, *packets.PubrecPacket, *packets.PubcompPacket:
		if !cl.outbound.Feed(pk) {
			id, _ := packets.PacketID(pk)
			cl.ops.log.Debug("unmatched acknowledgement", "client", cl.ID, "type", packets.PacketNames[pk.Type()], "packet_id", id)
		}
		return nil
	case *packets.PubrelPacket:
		if cl.inbound.Feed(pk) {
			return nil
		}
		return cl.WritePacket(&packets.PubcompPacket{PacketID: p.PacketID}) // [MQTT-4.3.3-2]
	case *packets.SubscribePacket:
		return cl.processSubscribe(p)
	case *packets.UnsubscribePacket:
		return cl.processUnsubscribe(p)
	case *packets.PingreqPacket:
		return cl.WritePacket(new(packets.PingrespPacket)) // [MQTT-3.12.4-1]
	case *packets.DisconnectPacket:
		cl.Stop(ErrClientDisconnect) // [MQTT-3.14.4-3]
		return ErrClientDisconnect
	case *packets.ConnectPacket:
		return packets.ErrProtocolViolationSecondConnect // [MQTT-3.1.0-2]
	default:
		return packets.ErrProtocolViolationUnexpectedPacket
	}
}

// connect handles the connect packet of an idle client, accepting or rejecting it.
func (cl *Client) connect(pk *packets.ConnectPacket) error {
	details := newConnectDetails(pk, cl.Net.Remote, cl.Net.Listener)
	if details.ClientID == "" {
		if !details.Clean {
			return cl.reject(packets.ErrIdentifierRejected) // [MQTT-3.1.3-8]
		}
		details.ClientID = xid.New().String() // [MQTT-3.1.3-6] [MQTT-3.1.3-7]
	}
	cl.ID = details.ClientID

	if err := cl.ops.hooks.OnConnect(cl, details); err != nil {
		var code packets.Code
		if !errors.As(err, &code) || !isRejectCode(code) {
			cl.ops.log.Warn("connect hook failed", "error", err, "client", cl.ID)
			code = packets.ErrServerUnavailable
		}
		return cl.reject(code)
	}

	auth := cl.ops.hooks.OnConnectAuthenticate(cl, details)
	if !auth.Accepted() {
		code := auth.Code
		if !isRejectCode(code) {
			code = packets.ErrNotAuthorized
		}
		return cl.reject(code) // [MQTT-3.2.2-5]
	}

	var existing *Client
	if cl.ops.clients != nil {
		if e, ok := cl.ops.clients.Get(cl.ID); ok && e != cl && !e.Closed() {
			existing = e
		}
	}

	connected, ok := cl.reserveSlot(existing != nil)
	if !ok {
		return cl.reject(packets.ErrServerUnavailable)
	}

	cl.Lock()
	cl.Details = details
	cl.Unlock()

	// The client is connected before its connack is written, so a publish issued
	// as soon as the peer sees the connack finds it ready.
	if !atomic.CompareAndSwapUint32(&cl.state, uint32(StateIdle), uint32(StateConnected)) {
		atomic.AddInt64(&cl.ops.info.ClientsConnected, -1)
		return ErrConnectionClosed
	}

	atomic.AddInt64(&cl.ops.info.ClientsTotal, 1)
	if connected > atomic.LoadInt64(&cl.ops.info.ClientsMaximum) {
		atomic.StoreInt64(&cl.ops.info.ClientsMaximum, connected)
	}

	if existing != nil {
		existing.Stop(packets.ErrSessionTakenOver) // [MQTT-3.1.4-2]
	}
	if cl.ops.clients != nil {
		cl.ops.clients.Add(cl)
	}

	_ = cl.Net.Conn.SetReadDeadline(time.Time{})
	cl.refreshKeepalive()

	err := cl.WritePacket(&packets.ConnackPacket{
		SessionPresent: auth.SessionPresent && !details.Clean, // [MQTT-3.2.2-1]
		ReturnCode:     packets.CodeConnectionAccepted.Code,
	})
	if err != nil {
		cl.Stop(err)
		return err
	}

	cl.ops.log.Debug("client connected", "client", cl.ID, "remote", cl.Net.Remote, "listener", cl.Net.Listener)
	cl.ops.hooks.OnSessionEstablished(cl, details)
	return nil
}

// reserveSlot counts the client as connected and returns the new count. It fails
// when the server is at its client limit, unless the client takes over the session
// of a connected client which is about to be stopped.
func (cl *Client) reserveSlot(takeover bool) (int64, bool) {
	max := cl.ops.options.Capabilities.MaximumClients
	for {
		n := atomic.LoadInt64(&cl.ops.info.ClientsConnected)
		if cl.ops.clients != nil && !takeover && n >= max {
			return n, false
		}

		if atomic.CompareAndSwapInt64(&cl.ops.info.ClientsConnected, n, n+1) {
			return n + 1, true
		}
	}
}

// isRejectCode returns true if code is a connack return code which refuses a connection.
func isRejectCode(code packets.Code) bool {
	_, ok := packets.ConnackCodes[code.Code]
	return ok && code.Code != packets.CodeConnectionAccepted.Code
}

// reject sends a connack with the rejecting return code and returns the code as the
// error which ends the connection. [MQTT-3.2.2-4]
func (cl *Client) reject(code packets.Code) error {
	if err := cl.WritePacket(&packets.ConnackPacket{ReturnCode: code.Code}); err != nil {
		return err
	}
	return code
}

// refreshKeepalive arms or re-arms the keepalive deadline at one and a half times the
// client keepalive, plus a second of grace. A keepalive of 0 disables the deadline.
func (cl *Client) refreshKeepalive() {
	cl.Lock()
	defer cl.Unlock()

	if cl.Details.Keepalive == 0 || cl.Closed() {
		return
	}

	d := time.Duration(cl.Details.Keepalive)*time.Second*3/2 + time.Second // [MQTT-3.1.2-24]
	if cl.keepalive == nil {
		cl.keepalive = time.AfterFunc(d, func() {
			cl.Stop(packets.ErrKeepAliveTimeout)
		})
		return
	}

	cl.keepalive.Reset(d)
}

// processPublish handles an inbound publish according to its qos.
func (cl *Client) processPublish(pk *packets.PublishPacket) error {
	atomic.AddInt64(&cl.ops.info.MessagesReceived, 1)

	allowed := cl.ops.hooks.OnACLCheck(cl, pk.TopicName, true)
	if !allowed {
		// v3.1.1 has no means of refusing a publish, so it is acknowledged and discarded.
		atomic.AddInt64(&cl.ops.info.MessagesDropped, 1)
		cl.ops.hooks.OnPublishDropped(cl, pk)
	}

	switch pk.Qos {
	case packets.AtLeastOnce:
		if err := cl.WritePacket(&packets.PubackPacket{PacketID: pk.PacketID}); err != nil { // [MQTT-4.3.2-2]
			return err
		}
	case packets.ExactlyOnce:
		if !allowed {
			return cl.WritePacket(&packets.PubrecPacket{PacketID: pk.PacketID})
		}
		return cl.awaitRelease(pk)
	}

	if allowed {
		cl.ops.hooks.OnPublish(cl, pk)
	}

	return nil
}

// awaitRelease acknowledges a qos 2 publish with a pubrec and holds delivery until the
// matching pubrel arrives. If the pubrel does not arrive before the ack timeout, the
// message is dropped and the peer is expected to retry the whole publish.
func (cl *Client) awaitRelease(pk *packets.PublishPacket) error {
	if cl.inbound.Has(pk.PacketID) {
		return cl.WritePacket(&packets.PubrecPacket{PacketID: pk.PacketID}) // duplicate of a pending message
	}

	err := cl.inbound.RegisterFunc(packets.Pubrel, pk.PacketID, cl.ackTimeout(),
		func(packets.Packet) {
			atomic.AddInt64(&cl.ops.info.Inflight, -1)
			if err := cl.WritePacket(&packets.PubcompPacket{PacketID: pk.PacketID}); err != nil {
				cl.ops.log.Debug("failed to send pubcomp", "error", err, "client", cl.ID)
			}
			cl.ops.hooks.OnPublish(cl, pk)
		},
		func(err error) {
			atomic.AddInt64(&cl.ops.info.Inflight, -1)
			atomic.AddInt64(&cl.ops.info.InflightDropped, 1)
			cl.ops.log.Debug("dropped unreleased message", "error", err, "client", cl.ID, "packet_id", pk.PacketID)
			cl.ops.hooks.OnPublishDropped(cl, pk)
		},
	)
	if err != nil {
		return err
	}
	atomic.AddInt64(&cl.ops.info.Inflight, 1)

	return cl.WritePacket(&packets.PubrecPacket{PacketID: pk.PacketID}) // [MQTT-4.3.3-2]
}

// processSubscribe grants the requested subscriptions, capped at the server maximum
// qos, and answers with a suback index-aligned with the requested filters.
func (cl *Client) processSubscribe(pk *packets.SubscribePacket) error {
	codes := make([]byte, len(pk.Subscriptions))
	for i, sub := range pk.Subscriptions {
		if !cl.ops.hooks.OnACLCheck(cl, sub.Filter, false) {
			codes[i] = packets.ErrSubscriptionFailure.Code
			continue
		}

		qos := sub.Qos
		if byte(qos) > cl.ops.options.Capabilities.MaximumQos {
			qos = packets.Qos(cl.ops.options.Capabilities.MaximumQos) // [MQTT-3.8.4-6]
		}
		codes[i] = byte(qos)
	}

	codes = cl.ops.hooks.OnSubscribe(cl, pk, codes)
	for i, c := range codes {
		if c > byte(packets.ExactlyOnce) && c != packets.ErrSubscriptionFailure.Code {
			codes[i] = packets.ErrSubscriptionFailure.Code
		}
		if codes[i] != packets.ErrSubscriptionFailure.Code {
			atomic.AddInt64(&cl.ops.info.Subscriptions, 1)
		}
	}

	return cl.WritePacket(&packets.SubackPacket{ // [MQTT-3.8.4-1] [MQTT-3.8.4-5]
		PacketID:    pk.PacketID,
		ReturnCodes: codes,
	})
}

// processUnsubscribe notifies hooks of the unsubscription and always acknowledges it.
func (cl *Client) processUnsubscribe(pk *packets.UnsubscribePacket) error {
	cl.ops.hooks.OnUnsubscribe(cl, pk)
	return cl.WritePacket(&packets.UnsubackPacket{PacketID: pk.PacketID}) // [MQTT-3.10.4-4]
}

// Publish sends a message to the client. For qos 1 and 2 it blocks until the delivery
// handshake completes, resending each leg on timeout up to the configured number of
// retries before failing with ErrDeliveryFailed.
func (cl *Client) Publish(ctx context.Context, msg packets.Message) error {
	if cl.State() != StateConnected {
		return ErrConnectionClosed
	}

	if !msg.Qos.Valid() {
		return packets.ErrInvalidQos
	}

	pk := &packets.PublishPacket{Message: msg}
	if msg.Qos == packets.AtMostOnce {
		return cl.WritePacket(pk)
	}

	id, err := cl.NextPacketID()
	if err != nil {
		return err
	}
	defer cl.ReleasePacketID(id)

	pk.PacketID = id
	atomic.AddInt64(&cl.ops.info.Inflight, 1)
	defer atomic.AddInt64(&cl.ops.info.Inflight, -1)

	err = cl.deliver(ctx, pk)
	if err != nil {
		atomic.AddInt64(&cl.ops.info.InflightDropped, 1)
		cl.ops.hooks.OnQosDropped(cl, pk)
		return err
	}

	cl.ops.hooks.OnQosComplete(cl, pk)
	return nil
}

// deliver runs the handshake legs for an outbound qos 1 or 2 publish.
func (cl *Client) deliver(ctx context.Context, pk *packets.PublishPacket) error {
	expect := packets.Puback
	if pk.Qos == packets.ExactlyOnce {
		expect = packets.Pubrec
	}

	_, err := cl.leg(ctx, pk, expect, pk.PacketID, func(sent packets.Packet, resends int) {
		cl.ops.hooks.OnQosPublish(cl, sent.(*packets.PublishPacket), time.Now().Unix(), resends)
	})
	if err != nil || pk.Qos == packets.AtLeastOnce {
		return err
	}

	_, err = cl.leg(ctx, &packets.PubrelPacket{PacketID: pk.PacketID}, packets.Pubcomp, pk.PacketID, nil) // [MQTT-4.3.3-1]
	return err
}

// leg sends a packet and waits for a packet with the same id in answer. On each
// timeout the packet is resent, with the dup flag set if it is a publish.
func (cl *Client) leg(ctx context.Context, send packets.Packet, expect byte, id uint16, onSend func(packets.Packet, int)) (packets.Packet, error) {
	for resends := 0; ; resends++ {
		ex, err := cl.outbound.Register(expect, id, cl.ackTimeout())
		if err != nil {
			return nil, err
		}

		if err := cl.WritePacket(send); err != nil {
			ex.Cancel()
			return nil, err
		}

		if onSend != nil {
			onSend(send, resends)
		}

		reply, err := ex.Wait(ctx)
		if err == nil {
			return reply, nil
		}

		if !errors.Is(err, ErrAckTimeout) {
			return nil, err
		}

		if resends >= cl.ops.options.MaxRetries {
			cl.ops.log.Debug("acknowledgement retries exhausted", "client", cl.ID, "packet_id", id, "type", packets.PacketNames[expect])
			return nil, ErrDeliveryFailed
		}

		if p, ok := send.(*packets.PublishPacket); ok {
			p = p.Copy()
			p.Dup = true // [MQTT-3.3.1-1]
			send = p
		}
	}
}

func (cl *Client) ackTimeout() time.Duration {
	return time.Duration(cl.ops.options.AckTimeout) * time.Millisecond
}

// WritePacket encodes and writes a packet to the client connection. Frames from
// concurrent writers are never interleaved.
func (cl *Client) WritePacket(pk packets.Packet) error {
	if cl.Closed() {
		return ErrConnectionClosed
	}

	if cl.Net.Conn == nil {
		return ErrConnectionClosed
	}

	buf := mempool.GetBuffer()
	defer mempool.PutBuffer(buf)

	if err := packets.EncodeTo(buf, pk); err != nil {
		return err
	}

	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()

	b := buf.Bytes()
	for len(b) > 0 {
		n, err := cl.Net.Conn.Write(b)
		atomic.AddInt64(&cl.ops.info.BytesSent, int64(n))
		if err != nil {
			return err
		}
		b = b[n:]
	}

	atomic.AddInt64(&cl.ops.info.PacketsSent, 1)
	if pk.Type() == packets.Publish {
		atomic.AddInt64(&cl.ops.info.MessagesSent, 1)
	}

	cl.ops.hooks.OnPacketSent(cl, pk, buf.Bytes())
	return nil
}

// Stop ends the client connection. The keepalive timer is stopped, every pending
// exchange is rejected with err, the transport is closed, and the disconnect hook
// is called if the client had connected. Only the first call has any effect.
func (cl *Client) Stop(err error) {
	cl.stopOnce.Do(func() {
		if err == nil {
			err = ErrConnectionClosed
		}
		cl.stopCause.Store(errCause{err})

		cl.Lock()
		was := ClientState(atomic.SwapUint32(&cl.state, uint32(StateDisconnected)))
		if cl.keepalive != nil {
			cl.keepalive.Stop()
		}
		cl.Unlock()

		cl.inbound.Close(err)
		cl.outbound.Close(err)
		close(cl.done)

		if cl.Net.Conn != nil {
			_ = cl.Net.Conn.Close()
		}

		if cl.ops.clients != nil {
			cl.ops.clients.remove(cl)
		}

		if was != StateConnected {
			cl.ops.log.Debug("connection ended before connect", "error", err, "remote", cl.Net.Remote, "listener", cl.Net.Listener)
			return
		}

		atomic.AddInt64(&cl.ops.info.ClientsConnected, -1)
		atomic.AddInt64(&cl.ops.info.ClientsDisconnected, 1)

		cl.logStop(err)
		cl.ops.hooks.OnDisconnect(cl, err)
	})
}

// logStop logs the reason a connected client stopped, at a level matching its cause.
func (cl *Client) logStop(err error) {
	l := cl.ops.log.With("client", cl.ID, "remote", cl.Net.Remote, "listener", cl.Net.Listener)

	var code packets.Code
	switch {
	case errors.Is(err, ErrClientDisconnect):
		l.Debug("client disconnected")
	case errors.Is(err, packets.ErrKeepAliveTimeout):
		l.Info("client keepalive expired", "error", err)
	case errors.Is(err, packets.ErrSessionTakenOver), errors.Is(err, packets.ErrServerShuttingDown):
		l.Debug("client stopped", "error", err)
	case errors.As(err, &code):
		l.Warn("client protocol error", "error", err)
	default:
		l.Debug("client connection lost", "error", err)
	}
}

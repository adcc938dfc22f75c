// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/keymesh/lib/codec"
	"github.com/bureau-foundation/keymesh/lib/netutil"
)

// MaxFrameSize bounds one socket frame. Envelopes are a few hundred
// bytes; anything near this size is hostile.
const MaxFrameSize = 64 * 1024

// peerQueueDepth is how many frames the hub buffers per connection
// before it starts dropping frames for that peer.
const peerQueueDepth = 256

// socketWriteTimeout bounds one frame write.
const socketWriteTimeout = 5 * time.Second

// SocketHub relays frames between processes connected to one Unix
// socket. Each frame received from a connection is forwarded to every
// other connection. The hub never decodes frames.
type SocketHub struct {
	socketPath string
	logger     *slog.Logger
	ready      chan struct{}

	mu    sync.Mutex
	peers map[*hubPeer]struct{}

	active sync.WaitGroup
}

// NewSocketHub creates a hub that will listen on socketPath.
func NewSocketHub(socketPath string, logger *slog.Logger) *SocketHub {
	return &SocketHub{
		socketPath: socketPath,
		logger:     logger,
		ready:      make(chan struct{}),
		peers:      make(map[*hubPeer]struct{}),
	}
}

// Ready is closed once the hub is accepting connections.
func (h *SocketHub) Ready() <-chan struct{} { return h.ready }

// PeerCount returns the number of connected peers.
func (h *SocketHub) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Serve accepts peers until ctx is cancelled, then disconnects them and
// removes the socket file. A stale socket file is removed first.
func (h *SocketHub) Serve(ctx context.Context) error {
	if err := os.Remove(h.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", h.socketPath, err)
	}

	listener, err := net.Listen("unix", h.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(h.socketPath)
	}()

	if err := os.Chmod(h.socketPath, 0o600); err != nil {
		return fmt.Errorf("restricting %s: %w", h.socketPath, err)
	}

	stopListener := context.AfterFunc(ctx, func() { listener.Close() })
	defer stopListener()

	h.logger.Info("socket hub listening", "path", h.socketPath)
	close(h.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			h.logger.Error("accept failed", "error", err)
			continue
		}

		h.active.Add(1)
		go func() {
			defer h.active.Done()
			h.handlePeer(ctx, conn)
		}()
	}

	h.active.Wait()
	return nil
}

type hubPeer struct {
	conn     net.Conn
	outbound chan []byte
	closed   chan struct{}
	once     sync.Once
}

func (p *hubPeer) close() {
	p.once.Do(func() {
		close(p.closed)
		p.conn.Close()
	})
}

func (h *SocketHub) handlePeer(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := netutil.RequireSameUser(conn); err != nil {
		h.logger.Warn("rejecting peer", "error", err)
		return
	}

	peer := &hubPeer{
		conn:     conn,
		outbound: make(chan []byte, peerQueueDepth),
		closed:   make(chan struct{}),
	}
	h.mu.Lock()
	h.peers[peer] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("peer connected", "peers", h.PeerCount())

	defer func() {
		h.mu.Lock()
		delete(h.peers, peer)
		h.mu.Unlock()
		peer.close()
		h.logger.Debug("peer disconnected", "peers", h.PeerCount())
	}()

	stopPeer := context.AfterFunc(ctx, peer.close)
	defer stopPeer()

	go h.writePeer(peer)

	decoder := codec.NewDecoder(conn)
	for ctx.Err() == nil {
		var frame []byte
		if err := decoder.Decode(&frame); err != nil {
			if !netutil.IsExpectedCloseError(err) {
				h.logger.Debug("peer read failed", "error", err)
			}
			return
		}
		if len(frame) > MaxFrameSize {
			h.logger.Warn("dropping peer that sent an oversized frame", "size", len(frame))
			return
		}
		h.forward(peer, frame)
	}
}

// forward queues frame for every peer except from. A peer whose queue
// is full misses the frame.
func (h *SocketHub) forward(from *hubPeer, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for peer := range h.peers {
		if peer == from {
			continue
		}
		select {
		case peer.outbound <- frame:
		default:
			h.logger.Warn("peer queue full, dropping frame")
		}
	}
}

func (h *SocketHub) writePeer(peer *hubPeer) {
	encoder := codec.NewEncoder(peer.conn)
	for {
		select {
		case <-peer.closed:
			return
		case frame := <-peer.outbound:
			peer.conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
			if err := encoder.Encode(frame); err != nil {
				if !netutil.IsExpectedCloseError(err) {
					h.logger.Debug("peer write failed", "error", err)
				}
				peer.close()
				return
			}
		}
	}
}

// Compile-time interface check.
var _ Transport = (*SocketTransport)(nil)

// SocketTransport is a process's connection to a SocketHub. Frames it
// publishes reach every other hub peer and are looped back to its own
// listeners, so it behaves like the in-process broadcast channel.
type SocketTransport struct {
	conn      net.Conn
	origin    string
	logger    *slog.Logger
	listeners listenerSet

	writeMu sync.Mutex
	encoder *codec.Encoder

	closeOnce sync.Once
	done      chan struct{}
}

// socketFrame is what a SocketTransport writes to the hub: a bus frame
// and the origin of the process that published it. The hub relays it
// without decoding.
type socketFrame struct {
	Origin string `cbor:"origin"`
	Data   []byte `cbor:"data"`
}

// DialSocket connects to the hub at socketPath. Frames published
// through the transport carry origin, and deliveries carry the origin
// their publisher declared, so each receiving bus applies its own
// allow-list. The hub admits only same-uid peers, which are trusted to
// declare their origin truthfully.
func DialSocket(ctx context.Context, socketPath, origin string, logger *slog.Logger) (*SocketTransport, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to socket hub %s: %w", socketPath, err)
	}

	transport := &SocketTransport{
		conn:    conn,
		origin:  normalizeOrigin(origin),
		logger:  logger,
		encoder: codec.NewEncoder(conn),
		done:    make(chan struct{}),
	}
	go transport.readLoop()
	return transport, nil
}

// Name returns "socket".
func (t *SocketTransport) Name() string { return "socket" }

// Done is closed when the connection to the hub is lost or closed.
func (t *SocketTransport) Done() <-chan struct{} { return t.done }

// Publish sends frame to the hub and to local listeners.
func (t *SocketTransport) Publish(frame []byte) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}
	wrapped, err := codec.Marshal(socketFrame{Origin: t.origin, Data: frame})
	if err != nil {
		return fmt.Errorf("mesh: encoding socket frame: %w", err)
	}
	if len(wrapped) > MaxFrameSize {
		return fmt.Errorf("mesh: frame of %d bytes exceeds %d", len(wrapped), MaxFrameSize)
	}

	t.listeners.post(t.delivery(t.origin, bytes.Clone(frame)))

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
	if err := t.encoder.Encode(wrapped); err != nil {
		return fmt.Errorf("writing to socket hub: %w", err)
	}
	return nil
}

// Listen registers handler for frames from the hub and from local
// publishes.
func (t *SocketTransport) Listen(handler func(Delivery)) (func(), error) {
	select {
	case <-t.done:
		return nil, ErrTransportClosed
	default:
	}
	_, remove := t.listeners.add(handler)
	var once sync.Once
	return func() { once.Do(remove) }, nil
}

// Close disconnects from the hub and stops all listeners.
func (t *SocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
		t.listeners.stopAll()
	})
	return err
}

func (t *SocketTransport) delivery(origin string, frame []byte) Delivery {
	return Delivery{Data: frame, Origin: origin, Transport: t.Name()}
}

func (t *SocketTransport) readLoop() {
	defer t.Close()

	decoder := codec.NewDecoder(t.conn)
	for {
		var frame []byte
		if err := decoder.Decode(&frame); err != nil {
			select {
			case <-t.done:
			default:
				if netutil.IsExpectedCloseError(err) {
					t.logger.Warn("socket hub closed the connection")
				} else {
					t.logger.Warn("socket hub connection lost", "error", err)
				}
			}
			return
		}
		if len(frame) > MaxFrameSize {
			t.logger.Warn("socket hub sent an oversized frame", "size", len(frame))
			return
		}
		var wrapped socketFrame
		if err := codec.Unmarshal(frame, &wrapped); err != nil || wrapped.Origin == "" {
			t.logger.Debug("dropping socket frame without origin", "error", err)
			continue
		}
		t.listeners.post(t.delivery(normalizeOrigin(wrapped.Origin), wrapped.Data))
	}
}

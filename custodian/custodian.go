// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custodian

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/keymesh/lib/clock"
	"github.com/bureau-foundation/keymesh/lib/keychain"
	"github.com/bureau-foundation/keymesh/lib/registry"
	"github.com/bureau-foundation/keymesh/lib/sealed"
	"github.com/bureau-foundation/keymesh/lib/secret"
	"github.com/bureau-foundation/keymesh/mesh"
)

const (
	// DefaultSyncTimeout is how long a sync request waits for an
	// answer before it is re-sent.
	DefaultSyncTimeout = 10 * time.Second

	// DefaultSyncAttempts is how many unanswered sync requests move a
	// node to SyncFailed.
	DefaultSyncAttempts = 3
)

// Phase is the custodian's position in the unlock state machine.
type Phase string

const (
	PhaseLocked       Phase = "locked"
	PhaseUnlocking    Phase = "unlocking"
	PhaseAwaitingSync Phase = "awaiting_sync"
	PhaseSyncFailed   Phase = "sync_failed"
	PhaseUnlocked     Phase = "unlocked"
)

// Bus is the part of *mesh.Bus the custodian uses.
type Bus interface {
	Broadcast(draft mesh.Draft, source string) (mesh.Envelope, error)
	Subscribe(handler func(mesh.Envelope)) func()
}

// Config holds the collaborators for New.
type Config struct {
	Bus      Bus
	Registry *registry.Registry
	Logger   *slog.Logger

	// Clock drives sync timeouts. Nil means the real clock.
	Clock clock.Clock

	// Session receives the advisory unlocked flag. Nil disables it.
	Session SessionFlag

	// SyncTimeout is the wait per sync request. Zero means
	// DefaultSyncTimeout.
	SyncTimeout time.Duration

	// SyncAttempts is the number of sync requests sent before giving
	// up. Zero means DefaultSyncAttempts.
	SyncAttempts int
}

// Status is a snapshot of the custodian's state.
type Status struct {
	IsUnlocked  bool   `cbor:"is_unlocked" json:"is_unlocked"`
	HasKey      bool   `cbor:"has_key" json:"has_key"`
	Phase       Phase  `cbor:"phase" json:"phase"`
	NodeID      string `cbor:"node_id,omitempty" json:"node_id,omitempty"`
	Fingerprint string `cbor:"fingerprint,omitempty" json:"fingerprint,omitempty"`
}

// Custodian owns the master key of one execution context.
type Custodian struct {
	bus          Bus
	registry     *registry.Registry
	logger       *slog.Logger
	clock        clock.Clock
	session      SessionFlag
	syncTimeout  time.Duration
	syncAttempts int

	// mu guards everything below. It is never held across
	// Bus.Broadcast.
	mu          sync.Mutex
	nodeID      string
	controlID   string
	key         *secret.Buffer
	phase       Phase
	unsubscribe func()
	closed      bool

	// Sync request cycle state. generation invalidates timers armed
	// by an earlier cycle.
	pending    *sealed.Keypair
	attempts   int
	timer      *clock.Timer
	generation uint64
}

// New creates a locked, uninitialized Custodian.
func New(config Config) (*Custodian, error) {
	if config.Bus == nil {
		return nil, errors.New("custodian: bus is required")
	}
	if config.Registry == nil {
		return nil, errors.New("custodian: registry is required")
	}
	if config.Logger == nil {
		return nil, errors.New("custodian: logger is required")
	}
	if config.SyncTimeout < 0 {
		return nil, fmt.Errorf("custodian: negative sync timeout %s", config.SyncTimeout)
	}
	if config.SyncAttempts < 0 {
		return nil, fmt.Errorf("custodian: negative sync attempts %d", config.SyncAttempts)
	}

	custodian := &Custodian{
		bus:          config.Bus,
		registry:     config.Registry,
		logger:       config.Logger,
		clock:        config.Clock,
		session:      config.Session,
		syncTimeout:  config.SyncTimeout,
		syncAttempts: config.SyncAttempts,
		phase:        PhaseLocked,
	}
	if custodian.clock == nil {
		custodian.clock = clock.Real()
	}
	if custodian.syncTimeout == 0 {
		custodian.syncTimeout = DefaultSyncTimeout
	}
	if custodian.syncAttempts == 0 {
		custodian.syncAttempts = DefaultSyncAttempts
	}
	return custodian, nil
}

// Init binds the custodian to nodeID and subscribes to the bus,
// replacing any earlier subscription. A node other than the control
// node that holds no key then asks the control node for it. An id
// missing from the registry is logged and returns ErrUnknownNode
// without changing anything.
func (c *Custodian) Init(nodeID string) error {
	if _, ok := c.registry.Lookup(nodeID); !ok {
		c.logger.Warn("init with unknown node id, custodian stays unbound", "node", nodeID)
		return fmt.Errorf("%w: %q", ErrUnknownNode, nodeID)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("custodian: closed")
	}
	previous := c.unsubscribe
	c.unsubscribe = nil
	c.nodeID = nodeID
	c.controlID = c.registry.Control().ID
	c.cancelSyncLocked()
	c.mu.Unlock()

	if previous != nil {
		previous()
	}
	unsubscribe := c.bus.Subscribe(c.handle)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
		return errors.New("custodian: closed")
	}
	c.unsubscribe = unsubscribe
	needsKey := nodeID != c.controlID && c.key == nil
	c.mu.Unlock()

	c.logger.Info("custodian initialized", "node", nodeID, "control", nodeID == c.registry.Control().ID)
	if needsKey {
		return c.RequestSync()
	}
	return nil
}

// RequestSync starts a fresh cycle of key sync requests to the control
// node. It is a no-op on the control node and when a key is held.
func (c *Custodian) RequestSync() error {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return fmt.Errorf("creating sync recipient: %w", err)
	}

	c.mu.Lock()
	switch {
	case c.nodeID == "":
		c.mu.Unlock()
		keypair.Close()
		return ErrNotInitialized
	case c.closed || c.key != nil || c.nodeID == c.controlID:
		c.mu.Unlock()
		keypair.Close()
		return nil
	}
	c.cancelSyncLocked()
	c.releasePendingLocked()
	c.pending = keypair
	c.attempts = 0
	generation := c.generation
	c.mu.Unlock()

	c.sendSyncRequest(generation)
	return nil
}

// sendSyncRequest publishes one request of the current cycle and arms
// its timeout.
func (c *Custodian) sendSyncRequest(generation uint64) {
	c.mu.Lock()
	if generation != c.generation || c.pending == nil || c.key != nil || c.closed {
		c.mu.Unlock()
		return
	}
	c.attempts++
	attempt := c.attempts
	c.phase = PhaseAwaitingSync
	c.timer = c.clock.AfterFunc(c.syncTimeout, func() { c.syncTimedOut(generation) })
	source, target := c.nodeID, c.controlID
	recipient := c.pending.PublicKey
	c.mu.Unlock()

	draft, err := mesh.NewDraft(target, mesh.KindRPCRequest, Message{
		Action:    ActionRequestKeySync,
		Recipient: recipient,
	})
	if err == nil {
		_, err = c.bus.Broadcast(draft, source)
	}
	if err != nil {
		c.logger.Error("sending key sync request failed", "node", source, "error", err)
		return
	}
	c.logger.Info("requested key sync", "node", source, "control", target, "attempt", attempt)
}

func (c *Custodian) syncTimedOut(generation uint64) {
	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		return
	}
	switch c.phase {
	case PhaseAwaitingSync:
	case PhaseUnlocking:
		// A failed unlock returns to AwaitingSync, which still needs a
		// timer. Wait another period without spending an attempt.
		c.timer = c.clock.AfterFunc(c.syncTimeout, func() { c.syncTimedOut(generation) })
		c.mu.Unlock()
		return
	default:
		c.timer = nil
		c.mu.Unlock()
		return
	}
	c.timer = nil
	if c.attempts < c.syncAttempts {
		c.mu.Unlock()
		c.sendSyncRequest(generation)
		return
	}
	c.phase = PhaseSyncFailed
	nodeID, attempts := c.nodeID, c.attempts
	c.mu.Unlock()

	c.logger.Warn("key sync failed, control node did not answer",
		"node", nodeID,
		"attempts", attempts,
		"timeout", c.syncTimeout,
	)
}

// cancelSyncLocked ends the current sync cycle. The pending recipient
// is kept so a late sealed answer can still be opened; it is replaced
// by the next cycle or released when a key is installed.
func (c *Custodian) cancelSyncLocked() {
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Custodian) releasePendingLocked() {
	if c.pending != nil {
		c.pending.Close()
		c.pending = nil
	}
}

// Unlock derives the key-encryption key from password and unwraps the
// master key in entry. password is borrowed. On failure it returns
// false and the state is unchanged. On success the control node pushes
// the key to every node.
func (c *Custodian) Unlock(password *secret.Buffer, entry keychain.Entry) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	previous := c.phase
	if c.key == nil {
		c.phase = PhaseUnlocking
	}
	nodeID := c.nodeID
	c.mu.Unlock()

	key, err := keychain.Unwrap(password, entry)
	if err != nil {
		c.mu.Lock()
		if c.phase == PhaseUnlocking {
			c.phase = previous
		}
		c.mu.Unlock()
		c.logger.Warn("unlock failed: incorrect password", "node", nodeID)
		return false
	}

	if !c.install(key, "password") {
		return false
	}
	if nodeID != "" && c.registry.IsControl(nodeID) {
		c.pushKey(mesh.TargetAll, "")
	}
	return true
}

// install takes ownership of key and moves to Unlocked. It returns
// false, closing key, if the custodian is closed.
func (c *Custodian) install(key *secret.Buffer, via string) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		key.Close()
		return false
	}
	if c.key != nil {
		c.key.Close()
	}
	c.key = key
	c.phase = PhaseUnlocked
	c.cancelSyncLocked()
	c.releasePendingLocked()
	c.setSessionLocked(true)
	nodeID, fingerprint := c.nodeID, c.fingerprintLocked()
	c.mu.Unlock()

	c.logger.Info("vault unlocked", "node", nodeID, "via", via, "fingerprint", fingerprint)
	return true
}

// Lock discards the master key. It does not notify other nodes.
func (c *Custodian) Lock() {
	c.mu.Lock()
	wasUnlocked := c.key != nil
	if c.key != nil {
		c.key.Close()
		c.key = nil
	}
	c.phase = PhaseLocked
	c.cancelSyncLocked()
	c.releasePendingLocked()
	c.setSessionLocked(false)
	nodeID := c.nodeID
	c.mu.Unlock()

	if wasUnlocked {
		c.logger.Info("vault locked", "node", nodeID)
	}
}

// LockSystem locks this node and broadcasts lock_system to every node.
func (c *Custodian) LockSystem() error {
	c.Lock()

	c.mu.Lock()
	nodeID := c.nodeID
	c.mu.Unlock()
	if nodeID == "" {
		return ErrNotInitialized
	}

	draft, err := mesh.NewDraft(mesh.TargetAll, mesh.KindCommand, Message{Action: ActionLockSystem})
	if err != nil {
		return err
	}
	if _, err := c.bus.Broadcast(draft, nodeID); err != nil {
		return fmt.Errorf("broadcasting lock_system: %w", err)
	}
	c.logger.Info("system lock broadcast", "node", nodeID)
	return nil
}

// Status returns a snapshot of the custodian's state.
func (c *Custodian) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		IsUnlocked:  c.phase == PhaseUnlocked,
		HasKey:      c.key != nil,
		Phase:       c.phase,
		NodeID:      c.nodeID,
		Fingerprint: c.fingerprintLocked(),
	}
}

// Close stops the bus subscription and any pending sync, and discards
// the key. The custodian cannot be used afterwards.
func (c *Custodian) Close() error {
	c.Lock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	return nil
}

func (c *Custodian) setSessionLocked(unlocked bool) {
	if c.session == nil {
		return
	}
	if err := c.session.Set(unlocked); err != nil {
		c.logger.Warn("updating session flag failed", "node", c.nodeID, "error", err)
	}
}

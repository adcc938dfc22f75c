// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custodian

import (
	"github.com/bureau-foundation/keymesh/lib/keychain"
	"github.com/bureau-foundation/keymesh/lib/sealed"
	"github.com/bureau-foundation/keymesh/lib/secret"
	"github.com/bureau-foundation/keymesh/mesh"
)

// handle is the bus subscription installed by Init.
func (c *Custodian) handle(envelope mesh.Envelope) {
	c.mu.Lock()
	nodeID := c.nodeID
	c.mu.Unlock()
	if nodeID == "" || !envelope.AddressedTo(nodeID) {
		return
	}
	if envelope.Kind != mesh.KindRPCRequest && envelope.Kind != mesh.KindCommand {
		return
	}

	message, err := mesh.DecodePayload[Message](envelope)
	if err != nil {
		c.logger.Debug("ignoring envelope with undecodable payload",
			"node", nodeID,
			"source", envelope.Source,
			"kind", envelope.Kind,
			"error", err,
		)
		return
	}

	switch {
	case envelope.Kind == mesh.KindRPCRequest && message.Action == ActionRequestKeySync:
		c.answerSyncRequest(envelope, message)
	case envelope.Kind == mesh.KindCommand && message.Action == ActionSyncMasterKey:
		c.acceptSync(envelope, message)
	case envelope.Kind == mesh.KindCommand && message.Action == ActionLockSystem:
		c.logger.Info("lock_system received", "node", nodeID, "source", envelope.Source)
		c.Lock()
	}
	secret.Zero(message.Key)
}

// answerSyncRequest runs on the control node. Requests are answered
// only while unlocked.
func (c *Custodian) answerSyncRequest(envelope mesh.Envelope, message Message) {
	c.mu.Lock()
	isControl := c.nodeID == c.controlID
	unlocked := c.key != nil
	nodeID := c.nodeID
	c.mu.Unlock()

	if !isControl {
		return
	}
	if !unlocked {
		c.logger.Debug("ignoring key sync request while locked", "node", nodeID, "requester", envelope.Source)
		return
	}
	if envelope.Source == nodeID {
		return
	}
	if _, known := c.registry.Lookup(envelope.Source); !known {
		c.logger.Warn("ignoring key sync request from unknown node", "requester", envelope.Source)
		return
	}
	if message.Recipient != "" {
		if err := sealed.ParsePublicKey(message.Recipient); err != nil {
			c.logger.Warn("ignoring key sync request with invalid recipient",
				"requester", envelope.Source,
				"error", err,
			)
			return
		}
	}
	c.pushKey(envelope.Source, message.Recipient)
}

// pushKey sends sync_master_key to target. With a recipient the key is
// sealed to it; otherwise the raw key is sent.
func (c *Custodian) pushKey(target, recipient string) {
	c.mu.Lock()
	if c.key == nil {
		c.mu.Unlock()
		return
	}
	message := Message{Action: ActionSyncMasterKey}
	var err error
	if recipient != "" {
		message.SealedKey, err = sealed.Seal(c.key.Bytes(), recipient)
	} else {
		message.Key = append([]byte(nil), c.key.Bytes()...)
	}
	nodeID := c.nodeID
	c.mu.Unlock()
	defer secret.Zero(message.Key)

	if err != nil {
		c.logger.Error("sealing master key failed", "node", nodeID, "target", target, "error", err)
		return
	}

	draft, err := mesh.NewDraft(target, mesh.KindCommand, message)
	if err != nil {
		c.logger.Error("encoding key sync failed", "node", nodeID, "error", err)
		return
	}
	defer secret.Zero(draft.Payload)

	if _, err := c.bus.Broadcast(draft, nodeID); err != nil {
		c.logger.Error("broadcasting key sync failed", "node", nodeID, "error", err)
		return
	}
	c.logger.Info("master key sent", "node", nodeID, "target", target, "sealed", recipient != "")
}

// acceptSync imports a key sent by the control node.
func (c *Custodian) acceptSync(envelope mesh.Envelope, message Message) {
	c.mu.Lock()
	nodeID, controlID := c.nodeID, c.controlID
	c.mu.Unlock()

	if nodeID == controlID {
		return
	}
	if envelope.Source != controlID {
		c.logger.Warn("ignoring key sync from non-control node", "node", nodeID, "source", envelope.Source)
		return
	}

	var key *secret.Buffer
	var err error
	switch {
	case len(message.SealedKey) > 0:
		key, err = c.openSealedKey(message.SealedKey)
	case len(message.Key) > 0:
		key, err = secret.NewFromBytes(message.Key)
	default:
		c.logger.Warn("ignoring key sync without key material", "node", nodeID)
		return
	}
	if err != nil {
		c.logger.Warn("rejecting key sync", "node", nodeID, "error", err)
		return
	}
	if key.Len() != keychain.KeySize {
		c.logger.Warn("rejecting key sync with wrong key size", "node", nodeID, "size", key.Len())
		key.Close()
		return
	}
	c.install(key, "sync")
}

// openSealedKey opens a sealed key with the recipient of the current
// or most recent sync cycle.
func (c *Custodian) openSealedKey(ciphertext []byte) (*secret.Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return nil, errNoPendingRequest
	}
	return sealed.Open(ciphertext, c.pending.PrivateKey)
}

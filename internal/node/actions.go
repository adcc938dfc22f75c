// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/keymesh/custodian"
	"github.com/bureau-foundation/keymesh/lib/codec"
	"github.com/bureau-foundation/keymesh/lib/keychain"
	"github.com/bureau-foundation/keymesh/lib/secret"
	"github.com/bureau-foundation/keymesh/lib/service"
)

// Control socket action names.
const (
	ActionStatus      = "status"
	ActionEncrypt     = "encrypt"
	ActionDecrypt     = "decrypt"
	ActionUnlock      = "unlock"
	ActionLock        = "lock"
	ActionLockSystem  = "lock-system"
	ActionRequestSync = "request-sync"
)

// errIncorrectPassword is the only unlock failure callers see.
var errIncorrectPassword = errors.New("incorrect password")

// EncryptRequest is the request for ActionEncrypt.
type EncryptRequest struct {
	Plaintext string `cbor:"plaintext"`
}

// DecryptRequest is the request for ActionDecrypt.
type DecryptRequest struct {
	Ciphertext string `cbor:"ciphertext"`
}

// UnlockRequest is the request for ActionUnlock.
type UnlockRequest struct {
	User     string `cbor:"user"`
	Password []byte `cbor:"password"`
}

// TextResponse carries the result of encrypt and decrypt.
type TextResponse struct {
	Text string `cbor:"text"`
}

// RegisterActions binds the custodian's operations to server.
func RegisterActions(server *service.SocketServer, vault *custodian.Custodian, store keychain.Store, logger *slog.Logger) {
	server.Handle(ActionStatus, func(context.Context, []byte) (any, error) {
		return vault.Status(), nil
	})

	server.Handle(ActionEncrypt, func(_ context.Context, raw []byte) (any, error) {
		var request EncryptRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid encrypt request: %w", err)
		}
		ciphertext, err := vault.Encrypt(request.Plaintext)
		if err != nil {
			return nil, err
		}
		return TextResponse{Text: ciphertext}, nil
	})

	server.Handle(ActionDecrypt, func(_ context.Context, raw []byte) (any, error) {
		var request DecryptRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid decrypt request: %w", err)
		}
		plaintext, err := vault.Decrypt(request.Ciphertext)
		if err != nil {
			return nil, err
		}
		return TextResponse{Text: plaintext}, nil
	})

	server.Handle(ActionUnlock, func(ctx context.Context, raw []byte) (any, error) {
		var request UnlockRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid unlock request: %w", err)
		}
		defer secret.Zero(request.Password)
		if request.User == "" || len(request.Password) == 0 {
			return nil, errors.New("user and password are required")
		}

		entry, err := store.Lookup(ctx, request.User)
		if err != nil {
			// Unknown users look like wrong passwords.
			logger.Warn("unlock failed: key-chain lookup", "user", request.User, "error", err)
			return nil, errIncorrectPassword
		}
		password, err := secret.NewFromBytes(request.Password)
		if err != nil {
			return nil, err
		}
		defer password.Close()

		if !vault.Unlock(password, entry) {
			return nil, errIncorrectPassword
		}
		return vault.Status(), nil
	})

	server.Handle(ActionLock, func(context.Context, []byte) (any, error) {
		vault.Lock()
		return vault.Status(), nil
	})

	server.Handle(ActionLockSystem, func(context.Context, []byte) (any, error) {
		if err := vault.LockSystem(); err != nil {
			return nil, err
		}
		return vault.Status(), nil
	})

	server.Handle(ActionRequestSync, func(context.Context, []byte) (any, error) {
		if err := vault.RequestSync(); err != nil {
			return nil, err
		}
		return vault.Status(), nil
	})
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// ErrForeignPeer is returned by RequireSameUser when the peer runs as a
// different user.
var ErrForeignPeer = errors.New("peer runs as a different user")

// PeerUID returns the uid of the process on the other end of a Unix
// socket connection, from SO_PEERCRED.
func PeerUID(conn net.Conn) (uint32, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, fmt.Errorf("not a unix socket connection: %T", conn)
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return 0, err
	}

	var credentials *unix.Ucred
	var credentialsErr error
	if err := raw.Control(func(fd uintptr) {
		credentials, credentialsErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return 0, err
	}
	if credentialsErr != nil {
		return 0, fmt.Errorf("SO_PEERCRED: %w", credentialsErr)
	}
	return credentials.Uid, nil
}

// RequireSameUser fails unless the peer on conn runs as this process's
// uid.
func RequireSameUser(conn net.Conn) error {
	uid, err := PeerUID(conn)
	if err != nil {
		return err
	}
	if own := uint32(os.Getuid()); uid != own {
		return fmt.Errorf("%w: uid %d, want %d", ErrForeignPeer, uid, own)
	}
	return nil
}

//go:build linux

package ipc

import (
	"net"

	"golang.org/x/sys/unix"
)

// PeerCredentials reads SO_PEERCRED from a unix socket connection.
func PeerCredentials(conn net.Conn) (Credentials, bool) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return Credentials{}, false
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return Credentials{}, false
	}
	var (
		cred    *unix.Ucred
		credErr error
	)
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil || credErr != nil || cred == nil {
		return Credentials{}, false
	}
	return Credentials{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid}, true
}

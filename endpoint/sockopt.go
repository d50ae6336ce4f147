package endpoint

import (
	"context"
	"syscall"

	"golang.org/x/sys/unix"
)

// reusePortControl sets SO_REUSEADDR and SO_REUSEPORT on every socket this
// endpoint binds, so the stream and datagram listeners can share one port
// (spec §4.6 "Binds simultaneously a stream listener and a datagram
// socket on the same address ... both sockets set address-reuse
// options"). Grounded on XTLS-Xray-core's
// transport/internet.setReuseAddr/setReusePort, generalized into a
// net.ListenConfig.Control hook.
func reusePortControl(_ context.Context, _, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			ctrlErr = err
			return
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			ctrlErr = err
			return
		}
	})
	if err != nil {
		return err
	}
	return ctrlErr
}

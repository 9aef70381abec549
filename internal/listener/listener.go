//go:build unix

package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// discardBufferSize is enough to dequeue a datagram; the rest of a longer
// payload is truncated by the kernel, which is fine since it is never read.
const discardBufferSize = 512

// errNotUDP is returned when the bound socket is not a UDP socket.
var errNotUDP = errors.New("listener is not a UDP socket")

// Listener owns the bound UDP endpoint watched for triggers.
type Listener struct {
	// conn is the bound socket.
	conn *net.UDPConn
	// raw gives access to the descriptor for poll and recv.
	raw syscall.RawConn
}

// Listen binds a UDP socket to address:port.
func Listen(ctx context.Context, address netip.Addr, port int) (*Listener, error) {
	lc := net.ListenConfig{}

	endpoint := netip.AddrPortFrom(address, uint16(port)) //nolint:gosec // Port is validated by config.

	pc, err := lc.ListenPacket(ctx, "udp", endpoint.String())
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", endpoint, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()

		return nil, errNotUDP
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("access socket: %w", err)
	}

	return &Listener{
		conn: conn,
		raw:  raw,
	}, nil
}

// Addr returns the bound address and port.
func (l *Listener) Addr() netip.AddrPort {
	return l.conn.LocalAddr().(*net.UDPAddr).AddrPort() //nolint:forcetypeassert // Always UDP, checked in Listen.
}

// Wait reports whether a datagram is pending within timeout.
// Nothing is consumed: a pending datagram stays pending until Drain.
func (l *Listener) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var (
		ready   bool
		pollErr error
	)

	err := l.raw.Control(func(fd uintptr) {
		ready, pollErr = pollReadable(int(fd), timeout) //nolint:gosec // Descriptors fit in int.
	})
	if err != nil {
		return false, fmt.Errorf("control socket: %w", err)
	}

	if pollErr != nil {
		return false, fmt.Errorf("poll socket: %w", pollErr)
	}

	return ready, nil
}

// Drain discards every buffered datagram without blocking and returns how
// many were dropped. Calling it with nothing pending is a no-op.
func (l *Listener) Drain() (int, error) {
	var (
		count   int
		recvErr error
		buf     = make([]byte, discardBufferSize)
	)

	err := l.raw.Read(func(fd uintptr) bool {
		for {
			_, _, err := unix.Recvfrom(int(fd), buf, unix.MSG_DONTWAIT) //nolint:gosec // Descriptors fit in int.

			switch {
			case err == nil:
				count++
			case errors.Is(err, unix.EINTR):
			case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK):
				// Returning true tells the runtime not to wait for more data.
				return true
			default:
				recvErr = err

				return true
			}
		}
	})
	if err != nil {
		return count, fmt.Errorf("read socket: %w", err)
	}

	if recvErr != nil {
		return count, fmt.Errorf("discard datagram: %w", recvErr)
	}

	return count, nil
}

// Close releases the socket.
func (l *Listener) Close() error {
	return l.conn.Close()
}

// pollReadable waits up to timeout for fd to become readable, restarting
// after signal interruptions with the remaining time.
func pollReadable(fd int, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}

		fds := []unix.PollFd{{
			Fd:     int32(fd), //nolint:gosec // Descriptors fit in int32.
			Events: unix.POLLIN,
		}}

		n, err := unix.Poll(fds, timeoutMillis(remaining))
		if errors.Is(err, unix.EINTR) {
			continue
		}

		if err != nil {
			return false, err
		}

		return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
	}
}

// timeoutMillis rounds up so that a short positive timeout still waits.
func timeoutMillis(d time.Duration) int {
	if d <= 0 {
		return 0
	}

	return int((d + time.Millisecond - 1) / time.Millisecond)
}

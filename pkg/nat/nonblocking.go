package nat

import (
	"errors"
	"net"
	"os"
	"time"
)

// pollDeadline is the tiny deadline nonblocking accept/read use to probe
// readiness without blocking the coordinator's single poll goroutine.
const pollDeadline = time.Millisecond

// acceptNonBlocking returns (nil, nil) when no connection is waiting.
func acceptNonBlocking(ln net.Listener) (net.Conn, error) {
	if dl, ok := ln.(interface{ SetDeadline(time.Time) error }); ok {
		_ = dl.SetDeadline(time.Now().Add(pollDeadline))
	}
	conn, err := ln.Accept()
	if err != nil {
		if isTimeout(err) {
			return nil, nil
		}
		return nil, err
	}
	return conn, nil
}

// recvNonBlocking returns (nil, nil) when no data is currently available.
func recvNonBlocking(conn net.Conn) ([]byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(pollDeadline))
	buf := make([]byte, 64*1024)
	n, err := conn.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return nil, nil
		}
		return nil, err
	}
	return buf[:n], nil
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

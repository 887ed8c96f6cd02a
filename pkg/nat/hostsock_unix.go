//go:build unix

package nat

import (
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// listenHost opens a host TCP listener on 127.0.0.1:port with
// SO_REUSEADDR and the socket placed in non-blocking mode before it is
// wrapped as a net.Listener, so a recently used host port can be bound
// again without waiting out TIME_WAIT.
func listenHost(port int) (net.Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}

	addr := unix.SockaddrInet4{Port: port}
	copy(addr.Addr[:], net.IPv4(127, 0, 0, 1).To4())
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return nil, err
	}

	f := os.NewFile(uintptr(fd), "")
	defer f.Close()
	return net.FileListener(f)
}

// dialHost opens a TCP connection to host:port. The dial blocks until
// the connection is established or fails.
func dialHost(host string, port int) (net.Conn, error) {
	d := net.Dialer{}
	return d.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
}

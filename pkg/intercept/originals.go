package intercept

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// Originals are the implementations the dispatcher delegates to. In the
// shared object they are the next definitions of each symbol visible to the
// dynamic linker; in tests they are fakes.
//
// Address buffers hold a raw struct sockaddr. A nil buffer stands for a NULL
// address argument. Errors are unix.Errno values.
type Originals interface {
	Bind(fd int, addr []byte) error
	// GetSockName fills addr and returns the full address length, which may
	// exceed len(addr).
	GetSockName(fd int, addr []byte) (int, error)
	Accept(fd int, addr []byte) (nfd, addrlen int, err error)
	Accept4(fd int, addr []byte, flags int) (nfd, addrlen int, err error)
	Read(fd int, p []byte) (int, error)
	Write(fd int, p []byte) (int, error)
	Recv(fd int, p []byte, flags int) (int, error)
	Send(fd int, p []byte, flags int) (int, error)
	Close(fd int) error
	// SocketType returns SO_TYPE of fd.
	SocketType(fd int) (int, error)
}

// Resolver produces the Originals of the running process.
type Resolver func() (Originals, error)

// sockaddr_in and sockaddr_in6 both start with a host-order family followed
// by a network-order port.
const portOffset = 2

// DecodePort returns the address family and port of a raw IPv4 or IPv6
// sockaddr. ok is false for other families and short buffers.
func DecodePort(addr []byte) (family, port int, ok bool) {
	if len(addr) < portOffset+2 {
		return 0, 0, false
	}
	family = int(binary.NativeEndian.Uint16(addr))
	switch family {
	case unix.AF_INET:
		if len(addr) < unix.SizeofSockaddrInet4 {
			return 0, 0, false
		}
	case unix.AF_INET6:
		if len(addr) < unix.SizeofSockaddrInet6 {
			return 0, 0, false
		}
	default:
		return family, 0, false
	}
	return family, int(binary.BigEndian.Uint16(addr[portOffset:])), true
}

// EncodeInet4 builds a raw sockaddr_in for ip and port.
func EncodeInet4(ip [4]byte, port int) []byte {
	addr := make([]byte, unix.SizeofSockaddrInet4)
	binary.NativeEndian.PutUint16(addr, unix.AF_INET)
	binary.BigEndian.PutUint16(addr[portOffset:], uint16(port))
	copy(addr[4:8], ip[:])
	return addr
}

// EncodeInet6 builds a raw sockaddr_in6 for ip and port.
func EncodeInet6(ip [16]byte, port int) []byte {
	addr := make([]byte, unix.SizeofSockaddrInet6)
	binary.NativeEndian.PutUint16(addr, unix.AF_INET6)
	binary.BigEndian.PutUint16(addr[portOffset:], uint16(port))
	copy(addr[8:24], ip[:])
	return addr
}

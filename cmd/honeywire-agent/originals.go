package main

/*
#include "shim.h"
*/
import "C"

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// libcOriginals calls the definitions that follow this object in the
// dynamic linker's search order.
type libcOriginals struct{}

func resolveOriginals() error {
	if C.honeywire_resolve_all() != 0 {
		return errors.New("dlsym(RTLD_NEXT) found no definition for a socket call")
	}
	return nil
}

func bufPtr(p []byte) unsafe.Pointer {
	if len(p) == 0 {
		return nil
	}
	return unsafe.Pointer(&p[0])
}

func errnoOf(err error) error {
	var errno unix.Errno
	if errors.As(err, &errno) && errno != 0 {
		return errno
	}
	return unix.EIO
}

func (libcOriginals) Bind(fd int, addr []byte) error {
	r, err := C.call_real_bind(C.int(fd), bufPtr(addr), C.socklen_t(len(addr)))
	if r < 0 {
		return errnoOf(err)
	}
	return nil
}

func (libcOriginals) GetSockName(fd int, addr []byte) (int, error) {
	length := C.socklen_t(len(addr))
	r, err := C.call_real_getsockname(C.int(fd), bufPtr(addr), &length)
	if r < 0 {
		return 0, errnoOf(err)
	}
	return int(length), nil
}

func (libcOriginals) Accept(fd int, addr []byte) (int, int, error) {
	ptr, length, lengthPtr := acceptArgs(addr)
	r, err := C.call_real_accept(C.int(fd), ptr, lengthPtr)
	if r < 0 {
		return -1, 0, errnoOf(err)
	}
	return int(r), int(*length), nil
}

func (libcOriginals) Accept4(fd int, addr []byte, flags int) (int, int, error) {
	ptr, length, lengthPtr := acceptArgs(addr)
	r, err := C.call_real_accept4(C.int(fd), ptr, lengthPtr, C.int(flags))
	if r < 0 {
		return -1, 0, errnoOf(err)
	}
	return int(r), int(*length), nil
}

// acceptArgs passes NULL for both address arguments when addr is empty.
func acceptArgs(addr []byte) (unsafe.Pointer, *C.socklen_t, *C.socklen_t) {
	length := new(C.socklen_t)
	if len(addr) == 0 {
		return nil, length, nil
	}
	*length = C.socklen_t(len(addr))
	return unsafe.Pointer(&addr[0]), length, length
}

func (libcOriginals) Read(fd int, p []byte) (int, error) {
	r, err := C.call_real_read(C.int(fd), bufPtr(p), C.size_t(len(p)))
	if r < 0 {
		return 0, errnoOf(err)
	}
	return int(r), nil
}

func (libcOriginals) Write(fd int, p []byte) (int, error) {
	r, err := C.call_real_write(C.int(fd), bufPtr(p), C.size_t(len(p)))
	if r < 0 {
		return 0, errnoOf(err)
	}
	return int(r), nil
}

func (libcOriginals) Recv(fd int, p []byte, flags int) (int, error) {
	r, err := C.call_real_recv(C.int(fd), bufPtr(p), C.size_t(len(p)), C.int(flags))
	if r < 0 {
		return 0, errnoOf(err)
	}
	return int(r), nil
}

func (libcOriginals) Send(fd int, p []byte, flags int) (int, error) {
	r, err := C.call_real_send(C.int(fd), bufPtr(p), C.size_t(len(p)), C.int(flags))
	if r < 0 {
		return 0, errnoOf(err)
	}
	return int(r), nil
}

func (libcOriginals) Close(fd int) error {
	r, err := C.call_real_close(C.int(fd))
	if r < 0 {
		return errnoOf(err)
	}
	return nil
}

// SocketType asks the kernel directly; getsockopt is not interposed.
func (libcOriginals) SocketType(fd int) (int, error) {
	return unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE)
}

package main

/*
#include "shim.h"
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"mercator-hq/honeywire/pkg/config"
	"mercator-hq/honeywire/pkg/intercept"
)

const shutdownTimeout = 2 * time.Second

var (
	agent      *intercept.Runtime
	dispatcher atomic.Pointer[intercept.Dispatcher]
)

func current() *intercept.Dispatcher {
	if d := dispatcher.Load(); d != nil {
		return d
	}
	return intercept.Passthrough(libcOriginals{})
}

//export honeywire_start
func honeywire_start(argv0 *C.char) {
	cfg, err := config.FromEnvironment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "honeywire: %v; using defaults\n", err)
		cfg = config.Default()
	}

	agent = intercept.NewRuntime(cfg)
	d, err := agent.Start(context.Background(), C.GoString(argv0), func() (intercept.Originals, error) {
		if err := resolveOriginals(); err != nil {
			return nil, err
		}
		return libcOriginals{}, nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "honeywire: deception disabled: %v\n", err)
	}
	if d == nil || !d.Active() {
		return
	}
	dispatcher.Store(d)
	C.honeywire_set_active(1)
}

//export honeywire_stop
func honeywire_stop() {
	if agent == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := agent.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "honeywire: shutdown: %v\n", err)
	}
}

// cBytes views C memory as a byte slice. A NULL pointer yields nil.
func cBytes(p unsafe.Pointer, n int) []byte {
	if p == nil || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}

func sockaddrBytes(addr unsafe.Pointer, length *C.socklen_t) []byte {
	if length == nil {
		return nil
	}
	return cBytes(addr, int(*length))
}

// result encodes n or the errno of err the way the shim expects.
func result(n int, err error) C.long {
	if err == nil {
		return C.long(n)
	}
	var errno unix.Errno
	if errors.As(err, &errno) && errno != 0 {
		return -C.long(errno)
	}
	return -C.long(unix.EIO)
}

//export honeywire_bind
func honeywire_bind(fd C.int, addr unsafe.Pointer, length C.socklen_t) C.long {
	return result(0, current().Bind(int(fd), cBytes(addr, int(length))))
}

//export honeywire_getsockname
func honeywire_getsockname(fd C.int, addr unsafe.Pointer, length *C.socklen_t) C.long {
	n, err := current().GetSockName(int(fd), sockaddrBytes(addr, length))
	if err == nil && length != nil {
		*length = C.socklen_t(n)
	}
	return result(0, err)
}

//export honeywire_accept
func honeywire_accept(fd C.int, addr unsafe.Pointer, length *C.socklen_t) C.long {
	nfd, n, err := current().Accept(int(fd), sockaddrBytes(addr, length))
	if err == nil && length != nil {
		*length = C.socklen_t(n)
	}
	return result(nfd, err)
}

//export honeywire_accept4
func honeywire_accept4(fd C.int, addr unsafe.Pointer, length *C.socklen_t, flags C.int) C.long {
	nfd, n, err := current().Accept4(int(fd), sockaddrBytes(addr, length), int(flags))
	if err == nil && length != nil {
		*length = C.socklen_t(n)
	}
	return result(nfd, err)
}

//export honeywire_read
func honeywire_read(fd C.int, buf unsafe.Pointer, count C.size_t) C.long {
	return result(current().Read(int(fd), cBytes(buf, int(count))))
}

//export honeywire_write
func honeywire_write(fd C.int, buf unsafe.Pointer, count C.size_t) C.long {
	return result(current().Write(int(fd), cBytes(buf, int(count))))
}

//export honeywire_recv
func honeywire_recv(fd C.int, buf unsafe.Pointer, length C.size_t, flags C.int) C.long {
	return result(current().Recv(int(fd), cBytes(buf, int(length)), int(flags)))
}

//export honeywire_send
func honeywire_send(fd C.int, buf unsafe.Pointer, length C.size_t, flags C.int) C.long {
	return result(current().Send(int(fd), cBytes(buf, int(length)), int(flags)))
}

//export honeywire_close
func honeywire_close(fd C.int) C.long {
	return result(0, current().Close(int(fd)))
}

package intercept

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"mercator-hq/honeywire/pkg/book"
	"mercator-hq/honeywire/pkg/conntrack"
	"mercator-hq/honeywire/pkg/evidence"
	"mercator-hq/honeywire/pkg/fastpath"
	"mercator-hq/honeywire/pkg/honeywire/parser"
)

const rulesYAML = `- honeywire:
    kind: http_header
    enabled: yes
    name: server-banner
    operations:
      - op: replace_inplace
        key: Server
        value: nginx/1.18.0
- honeywire:
    kind: response_code
    enabled: yes
    name: admin-panel
    operations:
      - op: replace_status_code
        value: 200 OK
        condition:
          - path: /admin
`

const (
	listenFD = 3
	connFD   = 7
)

var loopback = [4]byte{127, 0, 0, 1}

// fakeOriginals stands in for libc. Accepted connections always get connFD.
type fakeOriginals struct {
	mu sync.Mutex

	bindErr    error
	local      []byte
	peer       []byte
	socketType int
	input      []byte

	// chunk limits the bytes taken per write or send; 0 takes everything.
	chunk int
	// failures are returned, in order, by the next writes.
	failures []error

	written  [][]byte
	accepts  int
	accept4s int
	closed   []int
}

func newFakeOriginals() *fakeOriginals {
	return &fakeOriginals{
		local:      EncodeInet4(loopback, 8080),
		peer:       EncodeInet4(loopback, 51234),
		socketType: unix.SOCK_STREAM,
	}
}

func (f *fakeOriginals) Bind(fd int, addr []byte) error {
	return f.bindErr
}

func (f *fakeOriginals) GetSockName(fd int, addr []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copy(addr, f.local), nil
}

func (f *fakeOriginals) Accept(fd int, addr []byte) (int, int, error) {
	f.mu.Lock()
	f.accepts++
	f.mu.Unlock()
	return connFD, copy(addr, f.peer), nil
}

func (f *fakeOriginals) Accept4(fd int, addr []byte, flags int) (int, int, error) {
	f.mu.Lock()
	f.accept4s++
	f.mu.Unlock()
	return connFD, copy(addr, f.peer), nil
}

func (f *fakeOriginals) Read(fd int, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copy(p, f.input), nil
}

func (f *fakeOriginals) Recv(fd int, p []byte, flags int) (int, error) {
	return f.Read(fd, p)
}

func (f *fakeOriginals) Write(fd int, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return 0, err
	}
	n := len(p)
	if f.chunk > 0 && n > f.chunk {
		n = f.chunk
	}
	f.written = append(f.written, append([]byte(nil), p[:n]...))
	return n, nil
}

func (f *fakeOriginals) Send(fd int, p []byte, flags int) (int, error) {
	return f.Write(fd, p)
}

func (f *fakeOriginals) Close(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, fd)
	return nil
}

func (f *fakeOriginals) SocketType(fd int) (int, error) {
	return f.socketType, nil
}

// wire returns everything written so far, concatenated.
func (f *fakeOriginals) wire() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return bytes.Join(f.written, nil)
}

type fakeSink struct {
	mu     sync.Mutex
	events []*evidence.Event
}

func (s *fakeSink) Record(event *evidence.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSink) kinds() []evidence.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kinds []evidence.Kind
	for _, e := range s.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type fakeMetrics struct {
	mu         sync.Mutex
	calls      map[string]int
	deceptions map[string]int
}

func (m *fakeMetrics) RecordInterception(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[call]++
}

func (m *fakeMetrics) RecordDeception(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deceptions == nil {
		m.deceptions = make(map[string]int)
	}
	m.deceptions[kind]++
}

func publishRules(t *testing.T, b *book.Book, yaml string) {
	t.Helper()
	cfg, err := parser.ParseBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	if !b.Publish(cfg, fastpath.Derive(cfg), time.Now()) {
		t.Fatal("Publish() = false")
	}
}

type harness struct {
	d       *Dispatcher
	orig    *fakeOriginals
	book    *book.Book
	table   *conntrack.Table
	sink    *fakeSink
	metrics *fakeMetrics
}

func newHarness(t *testing.T, rules string) *harness {
	t.Helper()
	h := &harness{
		orig:    newFakeOriginals(),
		book:    book.New(2 * time.Second),
		table:   conntrack.New(64),
		sink:    &fakeSink{},
		metrics: &fakeMetrics{},
	}
	if rules != "" {
		publishRules(t, h.book, rules)
	}
	h.d = NewDispatcher(h.orig, Options{
		Book:          h.book,
		Table:         h.table,
		DeceivedPorts: []int{8080},
		Metrics:       h.metrics,
		Evidence:      h.sink,
	})
	return h
}

// connect binds the listener and accepts connFD from it.
func (h *harness) connect(t *testing.T) {
	t.Helper()
	if err := h.d.Bind(listenFD, EncodeInet4(loopback, 8080)); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	addr := make([]byte, unix.SizeofSockaddrAny)
	nfd, n, err := h.d.Accept4(listenFD, addr, 0)
	if err != nil {
		t.Fatalf("Accept4() error = %v", err)
	}
	if nfd != connFD || n != unix.SizeofSockaddrInet4 {
		t.Fatalf("Accept4() = %d, %d, want %d, %d", nfd, n, connFD, unix.SizeofSockaddrInet4)
	}
}

func (h *harness) request(t *testing.T, req string) {
	t.Helper()
	h.orig.input = []byte(req)
	buf := make([]byte, 512)
	n, err := h.d.Read(connFD, buf)
	if err != nil || n != len(req) {
		t.Fatalf("Read() = %d, %v, want %d, nil", n, err, len(req))
	}
}

func TestDecodePort(t *testing.T) {
	tests := []struct {
		name       string
		addr       []byte
		wantFamily int
		wantPort   int
		wantOK     bool
	}{
		{"ipv4", EncodeInet4(loopback, 8080), unix.AF_INET, 8080, true},
		{"ipv6", EncodeInet6([16]byte{15: 1}, 443), unix.AF_INET6, 443, true},
		{"high port", EncodeInet4(loopback, 65535), unix.AF_INET, 65535, true},
		{"truncated ipv6", EncodeInet6([16]byte{}, 443)[:unix.SizeofSockaddrInet4], 0, 0, false},
		{"too short", []byte{2}, 0, 0, false},
		{"nil", nil, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			family, port, ok := DecodePort(tt.addr)
			if ok != tt.wantOK {
				t.Fatalf("DecodePort() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if family != tt.wantFamily || port != tt.wantPort {
				t.Errorf("DecodePort() = %d, %d, want %d, %d", family, port, tt.wantFamily, tt.wantPort)
			}
		})
	}
}

func TestDecodePort_UnixSocket(t *testing.T) {
	addr := EncodeInet4(loopback, 80)
	binary.NativeEndian.PutUint16(addr, unix.AF_UNIX)
	if _, _, ok := DecodePort(addr); ok {
		t.Error("DecodePort() accepted a non-IP family")
	}
}

func TestBind_CapturesRoot(t *testing.T) {
	tests := []struct {
		name     string
		port     int
		bindErr  error
		wantRoot int
	}{
		{"deceived port", 8080, nil, listenFD},
		{"other port", 22, nil, -1},
		{"failed bind", 8080, unix.EADDRINUSE, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, rulesYAML)
			h.orig.bindErr = tt.bindErr

			err := h.d.Bind(listenFD, EncodeInet4(loopback, tt.port))
			if !errors.Is(err, tt.bindErr) {
				t.Errorf("Bind() error = %v, want %v", err, tt.bindErr)
			}
			if got := h.table.Root(); got != tt.wantRoot {
				t.Errorf("Root() = %d, want %d", got, tt.wantRoot)
			}
		})
	}
}

func TestBind_FirstRootWins(t *testing.T) {
	h := newHarness(t, rulesYAML)
	h.d.Bind(listenFD, EncodeInet4(loopback, 8080))
	h.d.Bind(listenFD+1, EncodeInet4(loopback, 8080))

	if got := h.table.Root(); got != listenFD {
		t.Errorf("Root() = %d, want %d", got, listenFD)
	}
}

func TestGetSockName_CapturesRoot(t *testing.T) {
	h := newHarness(t, rulesYAML)

	addr := make([]byte, unix.SizeofSockaddrAny)
	n, err := h.d.GetSockName(listenFD, addr)
	if err != nil {
		t.Fatalf("GetSockName() error = %v", err)
	}
	if n != unix.SizeofSockaddrInet4 {
		t.Errorf("GetSockName() length = %d, want %d", n, unix.SizeofSockaddrInet4)
	}
	if got := h.table.Root(); got != listenFD {
		t.Errorf("Root() = %d, want %d", got, listenFD)
	}
}

func TestAccept4_TracesOnlyRootConnections(t *testing.T) {
	h := newHarness(t, rulesYAML)
	h.d.Bind(listenFD, EncodeInet4(loopback, 8080))

	addr := make([]byte, unix.SizeofSockaddrAny)
	h.d.Accept4(listenFD+1, addr, 0)
	if h.table.IsTraced(connFD) {
		t.Fatal("connection from a non-root listener was traced")
	}

	h.d.Accept4(listenFD, addr, unix.SOCK_CLOEXEC)
	if !h.table.IsTraced(connFD) {
		t.Fatal("connection from the root listener was not traced")
	}
}

func TestAccept4_NilAddressUsesLocalPort(t *testing.T) {
	h := newHarness(t, rulesYAML)
	h.d.Bind(listenFD, EncodeInet4(loopback, 8080))

	nfd, n, err := h.d.Accept4(listenFD, nil, 0)
	if err != nil || nfd != connFD || n != 0 {
		t.Fatalf("Accept4(nil) = %d, %d, %v", nfd, n, err)
	}
	if !h.table.IsTraced(connFD) {
		t.Error("connection accepted without address buffer was not traced")
	}
}

func TestAccept_ForwardsWhenEnabled(t *testing.T) {
	tests := []struct {
		name         string
		rules        string
		wantAccept4s int
		wantAccepts  int
		wantTraced   bool
	}{
		{"enabled", rulesYAML, 1, 0, true},
		{"no rules", "", 0, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.rules)
			h.d.Bind(listenFD, EncodeInet4(loopback, 8080))

			addr := make([]byte, unix.SizeofSockaddrAny)
			if _, _, err := h.d.Accept(listenFD, addr); err != nil {
				t.Fatalf("Accept() error = %v", err)
			}
			if h.orig.accept4s != tt.wantAccept4s || h.orig.accepts != tt.wantAccepts {
				t.Errorf("accept4/accept calls = %d/%d, want %d/%d",
					h.orig.accept4s, h.orig.accepts, tt.wantAccept4s, tt.wantAccepts)
			}
			if got := h.table.IsTraced(connFD); got != tt.wantTraced {
				t.Errorf("IsTraced() = %v, want %v", got, tt.wantTraced)
			}
		})
	}
}

func TestRead_OpensConnectionEntry(t *testing.T) {
	tests := []struct {
		name     string
		request  string
		wantOpen bool
		wantMode conntrack.RequestMode
	}{
		{"admin path", "GET /admin HTTP/1.1\r\nHost: shop\r\n\r\n", true, conntrack.ModeAdminPath},
		{"other path", "GET /index.html HTTP/1.1\r\nHost: shop\r\n\r\n", true, conntrack.ModeNone},
		{"body chunk", "name=admin&password=secret", false, conntrack.ModeNone},
		{"http2 preface", "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n", false, conntrack.ModeNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, rulesYAML)
			h.connect(t)
			h.request(t, tt.request)

			info, ok := h.table.Info(connFD)
			if ok != tt.wantOpen {
				t.Fatalf("Info() ok = %v, want %v", ok, tt.wantOpen)
			}
			if ok && info.Mode != tt.wantMode {
				t.Errorf("Mode = %v, want %v", info.Mode, tt.wantMode)
			}
		})
	}
}

func TestRead_UntracedDescriptorIgnored(t *testing.T) {
	h := newHarness(t, rulesYAML)
	h.request(t, "GET /admin HTTP/1.1\r\n\r\n")

	if _, ok := h.table.Info(connFD); ok {
		t.Error("request on an untraced descriptor opened an entry")
	}
	if len(h.sink.kinds()) != 0 {
		t.Errorf("evidence = %v, want none", h.sink.kinds())
	}
}

func TestAdminPathDeception(t *testing.T) {
	const (
		response = "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n"
		body     = "<h1>not found</h1>"
	)

	calls := []struct {
		name  string
		read  func(d *Dispatcher, p []byte) (int, error)
		write func(d *Dispatcher, p []byte) (int, error)
	}{
		{
			"read/write",
			func(d *Dispatcher, p []byte) (int, error) { return d.Read(connFD, p) },
			func(d *Dispatcher, p []byte) (int, error) { return d.Write(connFD, p) },
		},
		{
			"recv/send",
			func(d *Dispatcher, p []byte) (int, error) { return d.Recv(connFD, p, 0) },
			func(d *Dispatcher, p []byte) (int, error) { return d.Send(connFD, p, unix.MSG_NOSIGNAL) },
		},
	}

	for _, c := range calls {
		t.Run(c.name, func(t *testing.T) {
			h := newHarness(t, rulesYAML)
			h.connect(t)

			h.orig.input = []byte("GET /admin HTTP/1.1\r\nHost: shop\r\n\r\n")
			if _, err := c.read(h.d, make([]byte, 256)); err != nil {
				t.Fatalf("read error = %v", err)
			}
			if info, _ := h.table.Info(connFD); info.Mode != conntrack.ModeAdminPath {
				t.Fatalf("Mode = %v, want %v", info.Mode, conntrack.ModeAdminPath)
			}

			n, err := c.write(h.d, []byte(response))
			if err != nil {
				t.Fatalf("first write error = %v", err)
			}
			if n != len(response) {
				t.Errorf("first write = %d, want %d", n, len(response))
			}
			want := "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"
			if got := string(h.orig.wire()); got != want {
				t.Errorf("wire = %q, want %q", got, want)
			}

			n, err = c.write(h.d, []byte(body))
			if err != nil || n != len(body) {
				t.Fatalf("second write = %d, %v", n, err)
			}
			if got := string(h.orig.wire()); got != want+body {
				t.Errorf("wire after body = %q, want %q", got, want+body)
			}

			// A second response on the same connection without a new
			// request is not deceived.
			h.orig.written = nil
			c.write(h.d, []byte(response))
			if got := string(h.orig.wire()); got != response {
				t.Errorf("unrequested response = %q, want unchanged", got)
			}

			kinds := h.sink.kinds()
			wantKinds := []evidence.Kind{evidence.KindAdminPath, evidence.KindStatusReplaced}
			if len(kinds) != len(wantKinds) || kinds[0] != wantKinds[0] || kinds[1] != wantKinds[1] {
				t.Errorf("evidence kinds = %v, want %v", kinds, wantKinds)
			}
		})
	}
}

func TestAdminPathDeception_KeepAlive(t *testing.T) {
	h := newHarness(t, rulesYAML)
	h.connect(t)

	for i := 0; i < 2; i++ {
		h.orig.written = nil
		h.request(t, "GET /admin HTTP/1.1\r\n\r\n")
		h.d.Write(connFD, []byte("HTTP/1.1 404 Not Found\r\n\r\n"))
		if got := string(h.orig.wire()); got != "HTTP/1.1 200 OK\r\n\r\n" {
			t.Errorf("request %d: wire = %q", i, got)
		}
	}
}

func TestWrite_OtherPathKeepsStatus(t *testing.T) {
	h := newHarness(t, rulesYAML)
	h.connect(t)
	h.request(t, "GET /shop HTTP/1.1\r\n\r\n")

	const response = "HTTP/1.1 404 Not Found\r\n\r\n"
	h.d.Write(connFD, []byte(response))
	if got := string(h.orig.wire()); got != response {
		t.Errorf("wire = %q, want %q", got, response)
	}
}

func TestWrite_HeaderReplacedInPlace(t *testing.T) {
	h := newHarness(t, rulesYAML)
	h.connect(t)
	h.request(t, "GET / HTTP/1.1\r\n\r\n")

	response := []byte("HTTP/1.1 200 OK\r\nServer: Werkzeug/3.0.1 Python/3.11.4\r\nContent-Length: 2\r\n\r\nok")
	original := len(response)

	n, err := h.d.Write(connFD, response)
	if err != nil || n != original {
		t.Fatalf("Write() = %d, %v, want %d, nil", n, err, original)
	}

	wire := h.orig.wire()
	if len(wire) != original {
		t.Errorf("wire length = %d, want %d", len(wire), original)
	}
	if !bytes.Contains(wire, []byte("\r\nServer: nginx/1.18.0     ")) {
		t.Errorf("wire = %q, want padded nginx banner", wire)
	}
	if !bytes.Contains(wire, []byte("\r\nContent-Length: 2\r\n")) {
		t.Errorf("following header damaged: %q", wire)
	}
	if !bytes.Equal(wire, response) {
		t.Error("in-place replacement should rewrite the caller's buffer")
	}
	if got := h.sink.kinds(); len(got) != 1 || got[0] != evidence.KindHeaderReplaced {
		t.Errorf("evidence kinds = %v", got)
	}
}

func TestWrite_HeaderTooWideReallocates(t *testing.T) {
	h := newHarness(t, rulesYAML)
	h.connect(t)
	h.request(t, "GET / HTTP/1.1\r\n\r\n")

	response := "HTTP/1.1 200 OK\r\nServer: tiny\r\nContent-Length: 0\r\n\r\n"
	n, err := h.d.Write(connFD, []byte(response))
	if err != nil || n != len(response) {
		t.Fatalf("Write() = %d, %v, want %d, nil", n, err, len(response))
	}

	want := "HTTP/1.1 200 OK\r\nServer: nginx/1.18.0\r\nContent-Length: 0\r\n\r\n"
	if got := string(h.orig.wire()); got != want {
		t.Errorf("wire = %q, want %q", got, want)
	}
}

func TestWrite_HeaderAndStatusTogether(t *testing.T) {
	h := newHarness(t, rulesYAML)
	h.connect(t)
	h.request(t, "GET /admin HTTP/1.0\r\n\r\n")

	response := "HTTP/1.0 404 NOT FOUND\r\nServer: gunicorn\r\n\r\n"
	h.d.Write(connFD, []byte(response))

	want := "HTTP/1.0 200 OK\r\nServer: nginx/1.18.0\r\n\r\n"
	if got := string(h.orig.wire()); got != want {
		t.Errorf("wire = %q, want %q", got, want)
	}
}

func TestWrite_Passthrough(t *testing.T) {
	const response = "HTTP/1.1 404 Not Found\r\nServer: gunicorn/21\r\n\r\n"

	tests := []struct {
		name  string
		setup func(t *testing.T, h *harness)
		write string
	}{
		{
			name:  "untraced descriptor",
			setup: func(t *testing.T, h *harness) {},
			write: response,
		},
		{
			name: "datagram socket",
			setup: func(t *testing.T, h *harness) {
				h.connect(t)
				h.request(t, "GET /admin HTTP/1.1\r\n\r\n")
				h.orig.socketType = unix.SOCK_DGRAM
			},
			write: response,
		},
		{
			name: "unsupported version",
			setup: func(t *testing.T, h *harness) {
				h.connect(t)
				h.request(t, "GET /admin HTTP/1.1\r\n\r\n")
			},
			write: "HTTP/2 404\r\nServer: gunicorn/21\r\n\r\n",
		},
		{
			name: "no line terminator",
			setup: func(t *testing.T, h *harness) {
				h.connect(t)
				h.request(t, "GET /admin HTTP/1.1\r\n\r\n")
			},
			write: "HTTP/1.1 404 Not Found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, rulesYAML)
			tt.setup(t, h)

			n, err := h.d.Write(connFD, []byte(tt.write))
			if err != nil || n != len(tt.write) {
				t.Fatalf("Write() = %d, %v", n, err)
			}
			if got := string(h.orig.wire()); got != tt.write {
				t.Errorf("wire = %q, want %q", got, tt.write)
			}
		})
	}
}

func TestWrite_PassthroughWhilePublishing(t *testing.T) {
	h := newHarness(t, rulesYAML)
	h.connect(t)
	h.request(t, "GET /admin HTTP/1.1\r\n\r\n")

	if _, ok := h.book.BeginRead(); !ok {
		t.Fatal("BeginRead() = false")
	}
	done := make(chan bool)
	go func() {
		done <- h.book.Publish(h.book.Current().Config, h.book.Current().Model, time.Now())
	}()
	for !h.book.Writing() {
		time.Sleep(time.Millisecond)
	}

	const response = "HTTP/1.1 404 Not Found\r\n\r\n"
	h.d.Write(connFD, []byte(response))
	h.book.EndRead()
	<-done

	if got := string(h.orig.wire()); got != response {
		t.Errorf("wire = %q, want unchanged response", got)
	}
}

func TestWrite_RewrittenResponseSentInChunks(t *testing.T) {
	h := newHarness(t, rulesYAML)
	h.connect(t)
	h.request(t, "GET /admin HTTP/1.1\r\n\r\n")
	h.orig.chunk = 5
	h.orig.failures = []error{unix.EINTR}

	response := "HTTP/1.1 404 Not Found\r\nContent-Type: text/html\r\n\r\n"
	n, err := h.d.Write(connFD, []byte(response))
	if err != nil || n != len(response) {
		t.Fatalf("Write() = %d, %v, want %d, nil", n, err, len(response))
	}

	want := strings.Replace(response, "404 Not Found", "200 OK", 1)
	if got := string(h.orig.wire()); got != want {
		t.Errorf("wire = %q, want %q", got, want)
	}
	if len(h.orig.written) < 2 {
		t.Errorf("writes = %d, want several chunks", len(h.orig.written))
	}
}

func TestWrite_RewrittenResponseFailsBeforeProgress(t *testing.T) {
	h := newHarness(t, rulesYAML)
	h.connect(t)
	h.request(t, "GET /admin HTTP/1.1\r\n\r\n")
	h.orig.failures = []error{unix.EPIPE}

	const response = "HTTP/1.1 404 Not Found\r\n\r\n"
	n, err := h.d.Write(connFD, []byte(response))
	if !errors.Is(err, unix.EPIPE) || n != 0 {
		t.Errorf("Write() = %d, %v, want 0, EPIPE", n, err)
	}

	// Nothing went out, so the retry is still the first response write.
	n, err = h.d.Write(connFD, []byte(response))
	if err != nil || n != len(response) {
		t.Fatalf("retried Write() = %d, %v, want %d, nil", n, err, len(response))
	}
	if got := string(h.orig.wire()); got != "HTTP/1.1 200 OK\r\n\r\n" {
		t.Errorf("wire after retry = %q, want rewritten status", got)
	}
}

func TestWrite_HeaderOnlyRulesRewriteFirstWrite(t *testing.T) {
	const headerOnly = `- honeywire:
    kind: http_header
    enabled: yes
    name: server-banner
    operations:
      - op: replace_inplace
        key: Server
        value: nginx
`
	h := newHarness(t, headerOnly)
	h.connect(t)
	h.request(t, "GET / HTTP/1.1\r\n\r\n")

	const response = "HTTP/1.1 200 OK\r\nServer: gunicorn/20.1\r\n\r\n"
	first := []byte(response)
	h.d.Write(connFD, first)
	if want := "HTTP/1.1 200 OK\r\nServer: nginx        \r\n\r\n"; string(first) != want {
		t.Errorf("first write = %q, want %q", first, want)
	}

	second := []byte(response)
	h.d.Write(connFD, second)
	if string(second) != response {
		t.Errorf("second write = %q, want unchanged", second)
	}
	if got := h.sink.kinds(); len(got) != 1 {
		t.Errorf("evidence kinds = %v, want one header replacement", got)
	}
}

func TestClose_ReleasesTracking(t *testing.T) {
	h := newHarness(t, rulesYAML)
	h.connect(t)
	h.request(t, "GET /admin HTTP/1.1\r\n\r\n")

	if err := h.d.Close(connFD); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if h.table.IsTraced(connFD) {
		t.Error("descriptor still traced after Close()")
	}
	if _, ok := h.table.Info(connFD); ok {
		t.Error("entry survived Close()")
	}
	if len(h.orig.closed) != 1 || h.orig.closed[0] != connFD {
		t.Errorf("original close calls = %v, want [%d]", h.orig.closed, connFD)
	}

	// The descriptor number comes back for the next connection.
	addr := make([]byte, unix.SizeofSockaddrAny)
	h.d.Accept4(listenFD, addr, 0)
	if !h.table.IsTraced(connFD) {
		t.Fatal("reused descriptor was not traced")
	}
	if _, ok := h.table.Info(connFD); ok {
		t.Error("reused descriptor starts with a stale entry")
	}

	const response = "HTTP/1.1 404 Not Found\r\n\r\n"
	h.d.Write(connFD, []byte(response))
	if got := string(h.orig.wire()); got != response {
		t.Errorf("response before any request = %q, want unchanged", got)
	}
}

func TestClose_UntracedAlwaysDelegates(t *testing.T) {
	h := newHarness(t, rulesYAML)
	h.d.Close(42)
	if len(h.orig.closed) != 1 || h.orig.closed[0] != 42 {
		t.Errorf("original close calls = %v, want [42]", h.orig.closed)
	}
}

func TestClose_RootCanBeCapturedAgain(t *testing.T) {
	h := newHarness(t, rulesYAML)
	h.d.Bind(listenFD, EncodeInet4(loopback, 8080))
	h.d.Close(listenFD)

	if got := h.table.Root(); got != -1 {
		t.Fatalf("Root() after close = %d, want -1", got)
	}
	h.d.Bind(listenFD+2, EncodeInet4(loopback, 8080))
	if got := h.table.Root(); got != listenFD+2 {
		t.Errorf("Root() = %d, want %d", got, listenFD+2)
	}
}

func TestDispatcher_Metrics(t *testing.T) {
	h := newHarness(t, rulesYAML)
	h.connect(t)
	h.request(t, "GET /admin HTTP/1.1\r\n\r\n")
	h.d.Write(connFD, []byte("HTTP/1.1 404 Not Found\r\n\r\n"))
	h.d.Close(connFD)

	for call, want := range map[string]int{"bind": 1, "accept4": 1, "read": 1, "write": 1, "close": 1} {
		if got := h.metrics.calls[call]; got != want {
			t.Errorf("calls[%s] = %d, want %d", call, got, want)
		}
	}
	if got := h.metrics.deceptions[string(evidence.KindStatusReplaced)]; got != 1 {
		t.Errorf("deceptions[status_replaced] = %d, want 1", got)
	}
}

func TestPassthrough(t *testing.T) {
	orig := newFakeOriginals()
	d := Passthrough(orig)

	if d.Active() {
		t.Error("Passthrough().Active() = true")
	}
	d.Bind(listenFD, EncodeInet4(loopback, 8080))
	d.Accept(listenFD, make([]byte, unix.SizeofSockaddrAny))

	response := "HTTP/1.1 404 Not Found\r\nServer: gunicorn\r\n\r\n"
	d.Write(connFD, []byte(response))
	d.Close(connFD)

	if got := string(orig.wire()); got != response {
		t.Errorf("wire = %q, want %q", got, response)
	}
	if orig.accepts != 1 || orig.accept4s != 0 {
		t.Errorf("accept/accept4 calls = %d/%d, want 1/0", orig.accepts, orig.accept4s)
	}
	if len(orig.closed) != 1 {
		t.Errorf("close calls = %d, want 1", len(orig.closed))
	}
}

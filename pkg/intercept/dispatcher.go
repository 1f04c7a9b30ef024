package intercept

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"mercator-hq/honeywire/pkg/book"
	"mercator-hq/honeywire/pkg/conntrack"
	"mercator-hq/honeywire/pkg/evidence"
	"mercator-hq/honeywire/pkg/fastpath"
	"mercator-hq/honeywire/pkg/honeywire"
	"mercator-hq/honeywire/pkg/rewrite"
)

// DefaultSendTimeout bounds how long a rewritten response waits for a
// non-blocking socket to drain.
const DefaultSendTimeout = 5 * time.Second

// Metrics receives interception counts. *metrics.Collector implements it.
type Metrics interface {
	RecordInterception(call string)
	RecordDeception(kind string)
}

// EvidenceSink receives applied deceptions and must not block.
// *recorder.Recorder implements it.
type EvidenceSink interface {
	Record(event *evidence.Event) error
}

// Options configures a Dispatcher.
type Options struct {
	Book  *book.Book
	Table *conntrack.Table

	// DeceivedPorts are the listening ports a tracing root may be bound to.
	DeceivedPorts []int

	// HTTPVersions are the version tokens requests and responses must carry.
	// Default: rewrite.DefaultVersions
	HTTPVersions []string

	// SendTimeout bounds the wait for a non-blocking socket while a
	// rewritten response is sent.
	// Default: 5 seconds
	SendTimeout time.Duration

	// Metrics and Evidence may be nil.
	Metrics  Metrics
	Evidence EvidenceSink

	Logger *slog.Logger
}

// Dispatcher runs the replacement socket calls. All methods are safe for
// concurrent use.
type Dispatcher struct {
	orig   Originals
	active bool

	book        *book.Book
	table       *conntrack.Table
	ports       map[int]struct{}
	versions    []string
	sendTimeout time.Duration

	metrics  Metrics
	evidence EvidenceSink
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher that deceives according to the rules
// published in opts.Book.
func NewDispatcher(orig Originals, opts Options) *Dispatcher {
	if opts.Book == nil {
		opts.Book = book.New(0)
	}
	if opts.Table == nil {
		opts.Table = conntrack.New(0)
	}
	if len(opts.HTTPVersions) == 0 {
		opts.HTTPVersions = rewrite.DefaultVersions
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ports := make(map[int]struct{}, len(opts.DeceivedPorts))
	for _, p := range opts.DeceivedPorts {
		ports[p] = struct{}{}
	}

	return &Dispatcher{
		orig:        orig,
		active:      true,
		book:        opts.Book,
		table:       opts.Table,
		ports:       ports,
		versions:    opts.HTTPVersions,
		sendTimeout: opts.SendTimeout,
		metrics:     opts.Metrics,
		evidence:    opts.Evidence,
		logger:      opts.Logger.With("component", "intercept"),
	}
}

// Passthrough returns a dispatcher that only delegates.
func Passthrough(orig Originals) *Dispatcher {
	return &Dispatcher{orig: orig, logger: slog.Default()}
}

// Active reports whether the dispatcher deceives.
func (d *Dispatcher) Active() bool {
	return d.active
}

// Table returns the descriptor table, or nil for a passthrough dispatcher.
func (d *Dispatcher) Table() *conntrack.Table {
	return d.table
}

// Bind binds fd and, on success, records it as the tracing root when the
// address is on a deceived port and no root exists yet.
func (d *Dispatcher) Bind(fd int, addr []byte) error {
	err := d.orig.Bind(fd, addr)
	if !d.active {
		return err
	}
	d.count("bind")
	if err == nil {
		d.captureRoot("bind", fd, addr)
	}
	return err
}

// GetSockName captures the tracing root like Bind. Some runtimes inherit
// their listening socket and never call bind themselves.
func (d *Dispatcher) GetSockName(fd int, addr []byte) (int, error) {
	n, err := d.orig.GetSockName(fd, addr)
	if !d.active {
		return n, err
	}
	d.count("getsockname")
	if err == nil {
		d.captureRoot("getsockname", fd, addr[:min(n, len(addr))])
	}
	return n, err
}

func (d *Dispatcher) captureRoot(call string, fd int, addr []byte) {
	if d.table.Root() >= 0 {
		return
	}
	_, port, ok := DecodePort(addr)
	if !ok {
		return
	}
	if _, deceived := d.ports[port]; !deceived {
		return
	}
	if d.table.SetRoot(fd) {
		d.logger.Info("tracing root set", "call", call, "fd", fd, "port", port)
	}
}

// Accept is served by the accept4 path when connection tracing is enabled.
func (d *Dispatcher) Accept(fd int, addr []byte) (int, int, error) {
	if !d.active {
		return d.orig.Accept(fd, addr)
	}
	d.count("accept")

	enabled := false
	d.book.Read(func(p book.Pair) {
		enabled = p.Model.Accept.Enabled
	})
	if enabled {
		return d.accept4(fd, addr, 0)
	}
	return d.orig.Accept(fd, addr)
}

// Accept4 accepts a connection and traces it when it came from the tracing
// root.
func (d *Dispatcher) Accept4(fd int, addr []byte, flags int) (int, int, error) {
	if !d.active {
		return d.orig.Accept4(fd, addr, flags)
	}
	d.count("accept4")
	return d.accept4(fd, addr, flags)
}

func (d *Dispatcher) accept4(fd int, addr []byte, flags int) (int, int, error) {
	nfd, n, err := d.orig.Accept4(fd, addr, flags)
	if err != nil {
		return nfd, n, err
	}

	pair, ok := d.book.BeginRead()
	if !ok {
		return nfd, n, err
	}
	defer d.book.EndRead()

	if !pair.Model.Accept.Enabled || fd != d.table.Root() {
		return nfd, n, err
	}
	port, ok := d.connectionPort(nfd, addr, n)
	if !ok || port <= 1 {
		return nfd, n, err
	}

	// A descriptor number can come back without its close having been
	// seen, e.g. after dup2 over it.
	d.table.Release(nfd)
	if d.table.MarkTraced(nfd) {
		d.logger.Debug("connection traced", "fd", nfd, "listener", fd, "port", port)
	}
	return nfd, n, err
}

// connectionPort reads the port from the peer address accept filled in. When
// the caller passed no address buffer, the local address is used instead.
func (d *Dispatcher) connectionPort(nfd int, addr []byte, n int) (int, bool) {
	if len(addr) > 0 && n > 0 {
		_, port, ok := DecodePort(addr[:min(n, len(addr))])
		return port, ok
	}

	buf := make([]byte, unix.SizeofSockaddrAny)
	n, err := d.orig.GetSockName(nfd, buf)
	if err != nil {
		return 0, false
	}
	_, port, ok := DecodePort(buf[:min(n, len(buf))])
	return port, ok
}

// Read reads from fd and inspects what was read. The bytes are never
// modified.
func (d *Dispatcher) Read(fd int, p []byte) (int, error) {
	n, err := d.orig.Read(fd, p)
	if !d.active {
		return n, err
	}
	d.count("read")
	if err == nil && n > 0 {
		d.inspect(fd, p[:n])
	}
	return n, err
}

// Recv is Read with flags.
func (d *Dispatcher) Recv(fd int, p []byte, flags int) (int, error) {
	n, err := d.orig.Recv(fd, p, flags)
	if !d.active {
		return n, err
	}
	d.count("recv")
	if err == nil && n > 0 {
		d.inspect(fd, p[:n])
	}
	return n, err
}

// inspect opens a connection entry for every HTTP request read from a traced
// descriptor. Each request starts a new response, so keep-alive connections
// are deceived once per request.
func (d *Dispatcher) inspect(fd int, request []byte) {
	if !d.table.IsTraced(fd) {
		return
	}
	pair, ok := d.book.BeginRead()
	if !ok {
		return
	}
	defer d.book.EndRead()

	rg := pair.Model.Receive
	if !rg.Enabled || !rewrite.IsHTTP(request, d.versions) {
		return
	}

	mode := conntrack.ModeNone
	if rewrite.MatchesPath(request, rg.MatchingPath, d.versions) {
		mode = conntrack.ModeAdminPath
		d.logger.Info("watched path requested", "fd", fd, "path", rg.MatchingPath)
		d.record(&evidence.Event{
			FD:        fd,
			Kind:      evidence.KindAdminPath,
			Honeywire: pair.Model.Source(honeywire.KindResponseCode),
			Path:      rg.MatchingPath,
		})
	}
	d.table.Open(fd, mode)
}

// Write writes p to fd, deceiving the first response of a traced
// connection.
func (d *Dispatcher) Write(fd int, p []byte) (int, error) {
	if !d.active {
		return d.orig.Write(fd, p)
	}
	d.count("write")
	return d.transmit(fd, p, func(b []byte) (int, error) {
		return d.orig.Write(fd, b)
	})
}

// Send is Write with flags.
func (d *Dispatcher) Send(fd int, p []byte, flags int) (int, error) {
	if !d.active {
		return d.orig.Send(fd, p, flags)
	}
	d.count("send")
	return d.transmit(fd, p, func(b []byte) (int, error) {
		return d.orig.Send(fd, b, flags)
	})
}

func (d *Dispatcher) transmit(fd int, p []byte, send func([]byte) (int, error)) (int, error) {
	out, replaced := d.rewriteResponse(fd, p)
	if !replaced {
		return send(p)
	}
	n, err := d.sendAll(fd, len(p), out, send)
	if err != nil && n <= 0 {
		// Nothing left, so the caller's retry is still the first write.
		d.table.Rewind(fd)
	}
	return n, err
}

// rewriteResponse applies the send rules to p. Header values that fit are
// written into p itself; replaced reports whether a new buffer has to be
// sent instead.
func (d *Dispatcher) rewriteResponse(fd int, p []byte) (out []byte, replaced bool) {
	if !d.table.IsTraced(fd) {
		return p, false
	}
	pair, ok := d.book.BeginRead()
	if !ok {
		return p, false
	}
	defer d.book.EndRead()

	sg := pair.Model.Send
	if !sg.Enabled {
		return p, false
	}

	// Headers and body often leave in separate calls; only the first call
	// after a request, or after the connection was accepted, carries the
	// status line.
	info := d.table.Advance(fd)
	if info.Progress != 0 {
		return p, false
	}

	if typ, err := d.orig.SocketType(fd); err != nil || typ != unix.SOCK_STREAM {
		return p, false
	}
	line, ok := rewrite.FirstLine(p)
	if !ok {
		return p, false
	}
	version, ok := rewrite.SupportedVersion(line, d.versions)
	if !ok {
		d.logger.Debug("response passed through", "fd", fd, "reason", rewrite.ErrUnsupportedVersion)
		return p, false
	}

	out = p
	if sg.ReplaceHeader {
		out, replaced = d.replaceHeader(fd, pair.Model, out)
	}

	if sg.ReplaceStatus && info.Mode == conntrack.ModeAdminPath {
		status, err := rewrite.OverwriteStatusLine(out, version, sg.StatusText)
		if err != nil {
			d.logger.Warn("status line not replaced", "fd", fd, "error", err)
			return out, replaced
		}
		d.logger.Info("status line replaced", "fd", fd, "status", sg.StatusText)
		d.record(&evidence.Event{
			FD:        fd,
			Kind:      evidence.KindStatusReplaced,
			Honeywire: pair.Model.Source(honeywire.KindResponseCode),
			Path:      pair.Model.Receive.MatchingPath,
			Detail:    version + " " + sg.StatusText,
		})
		out, replaced = status, true
	}
	return out, replaced
}

// replaceHeader rewrites the configured header of buf. A replacement wider
// than the original value is spliced into a copy instead of overrunning the
// line terminator.
func (d *Dispatcher) replaceHeader(fd int, model *fastpath.Model, buf []byte) ([]byte, bool) {
	sg := model.Send
	out, replaced := buf, false

	err := rewrite.ReplaceHeaderInPlace(buf, sg.AttributeKey, sg.Replacement)
	if errors.Is(err, rewrite.ErrReplacementTooWide) {
		out, err = rewrite.ReplaceHeader(buf, sg.AttributeKey, sg.Replacement)
		replaced = err == nil
	}
	if err != nil {
		if !errors.Is(err, rewrite.ErrHeaderNotFound) {
			d.logger.Debug("header not replaced", "fd", fd, "key", sg.AttributeKey, "error", err)
		}
		return buf, false
	}

	d.logger.Info("header replaced", "fd", fd, "key", sg.AttributeKey)
	d.record(&evidence.Event{
		FD:        fd,
		Kind:      evidence.KindHeaderReplaced,
		Honeywire: model.Source(honeywire.KindHTTPHeader),
		Detail:    sg.AttributeKey + ": " + sg.Replacement,
	})
	return out, replaced
}

// sendAll writes all of out and reports requested bytes as sent, so the
// caller does not resend the tail of a buffer it no longer recognizes. An
// error is returned only when nothing was sent.
func (d *Dispatcher) sendAll(fd, requested int, out []byte, send func([]byte) (int, error)) (int, error) {
	deadline := time.Now().Add(d.sendTimeout)
	sent := 0
	for sent < len(out) {
		n, err := send(out[sent:])
		if n > 0 {
			sent += n
		}
		if err == nil && n <= 0 {
			err = io.ErrShortWrite
		}
		if err == nil {
			continue
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EAGAIN) && waitWritable(fd, deadline) {
			continue
		}
		if sent == 0 {
			return 0, err
		}
		d.logger.Warn("rewritten response truncated", "fd", fd, "sent", sent, "size", len(out), "error", err)
		return requested, nil
	}
	return requested, nil
}

// waitWritable polls fd until it accepts more data or deadline passes.
func waitWritable(fd int, deadline time.Time) bool {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, err := unix.Poll(fds, int(remaining.Milliseconds())+1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return err == nil && n > 0 && fds[0].Revents&unix.POLLOUT != 0
	}
}

// Close forgets fd and closes it.
func (d *Dispatcher) Close(fd int) error {
	if d.active {
		d.count("close")
		if d.table.Release(fd) {
			d.logger.Debug("descriptor released", "fd", fd)
		}
	}
	return d.orig.Close(fd)
}

func (d *Dispatcher) count(call string) {
	if d.metrics != nil {
		d.metrics.RecordInterception(call)
	}
}

func (d *Dispatcher) record(event *evidence.Event) {
	if d.metrics != nil {
		d.metrics.RecordDeception(string(event.Kind))
	}
	if d.evidence == nil {
		return
	}
	if err := d.evidence.Record(event); err != nil {
		d.logger.Debug("evidence not recorded", "kind", event.Kind, "error", err)
	}
}

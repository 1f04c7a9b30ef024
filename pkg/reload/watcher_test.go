package reload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mercator-hq/honeywire/pkg/book"
	"mercator-hq/honeywire/pkg/honeywire"
)

const bannerYAML = `- honeywire:
    kind: http_header
    enabled: yes
    name: server-banner
    operations:
      - op: replace_inplace
        key: Server
        value: nginx/1.18.0
`

const adminYAML = `- honeywire:
    kind: response_code
    enabled: yes
    name: admin-panel
    operations:
      - op: replace_status_code
        value: 200 OK
        condition:
          - path: /admin
`

type resultLog struct {
	mu      sync.Mutex
	results []string
}

func (r *resultLog) RecordReload(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *resultLog) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.results) == 0 {
		return ""
	}
	return r.results[len(r.results)-1]
}

// writeAt writes content to path and sets its modification time.
func writeAt(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}
}

func newTestWatcher(t *testing.T) (*Watcher, *book.Book, *resultLog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "honeyaml.yaml")
	b := book.New(200 * time.Millisecond)
	log := &resultLog{}
	return New(Config{Path: path, PollInterval: time.Hour}, b, nil, log), b, log, path
}

func TestCheck_PublishesNewFile(t *testing.T) {
	w, b, log, path := newTestWatcher(t)
	mtime := time.Now().Add(-time.Minute).Truncate(time.Second)
	writeAt(t, path, bannerYAML, mtime)

	if err := w.Check(context.Background()); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if log.last() != ResultPublished {
		t.Errorf("result = %q, want %q", log.last(), ResultPublished)
	}
	if !b.LastUpdate().Equal(mtime) {
		t.Errorf("LastUpdate() = %v, want %v", b.LastUpdate(), mtime)
	}

	pair := b.Current()
	if len(pair.Config.Honeywires) != 1 || pair.Config.Honeywires[0].Name != "server-banner" {
		t.Errorf("published config = %+v", pair.Config)
	}
	if !pair.Model.Send.ReplaceHeader || pair.Model.Send.Replacement != "nginx/1.18.0" {
		t.Errorf("published model = %+v", pair.Model)
	}
}

func TestCheck_UnchangedFile(t *testing.T) {
	w, b, log, path := newTestWatcher(t)
	mtime := time.Now().Add(-time.Minute).Truncate(time.Second)
	writeAt(t, path, bannerYAML, mtime)

	if err := w.Check(context.Background()); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	first := b.Current()

	// Same mtime, different content: not reloaded.
	writeAt(t, path, adminYAML, mtime)
	if err := w.Check(context.Background()); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if log.last() != ResultUnchanged {
		t.Errorf("result = %q, want %q", log.last(), ResultUnchanged)
	}
	if b.Current().Config != first.Config {
		t.Error("unchanged file was republished")
	}

	writeAt(t, path, adminYAML, mtime.Add(time.Second))
	if err := w.Check(context.Background()); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if got := b.Current().Config.Honeywires[0].Kind; got != honeywire.KindResponseCode {
		t.Errorf("Kind after change = %v, want response_code", got)
	}
}

func TestCheck_MissingFile(t *testing.T) {
	w, b, log, _ := newTestWatcher(t)

	err := w.Check(context.Background())
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("Check() error = %v, want IOError", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error does not wrap os.ErrNotExist: %v", err)
	}
	if log.last() != ResultIOError {
		t.Errorf("result = %q, want %q", log.last(), ResultIOError)
	}
	if !b.LastUpdate().IsZero() {
		t.Error("LastUpdate advanced on a missing file")
	}
}

func TestCheck_ParseErrorKeepsRulesAndRetries(t *testing.T) {
	w, b, log, path := newTestWatcher(t)
	mtime := time.Now().Add(-time.Minute).Truncate(time.Second)
	writeAt(t, path, bannerYAML, mtime)
	if err := w.Check(context.Background()); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	good := b.Current()

	badTime := mtime.Add(time.Second)
	writeAt(t, path, "- honeywire:\n    colour: blue\n", badTime)

	for i := 0; i < 2; i++ {
		err := w.Check(context.Background())
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("Check() #%d error = %v, want ParseError", i, err)
		}
		if !errors.Is(err, &honeywire.ParseError{Code: honeywire.KeyNotFound}) {
			t.Errorf("error does not carry KeyNotFound: %v", err)
		}
		if log.last() != ResultParseError {
			t.Errorf("result = %q, want %q", log.last(), ResultParseError)
		}
	}

	if b.Current().Config != good.Config {
		t.Error("rejected file replaced the active rules")
	}
	if !b.LastUpdate().Equal(mtime) {
		t.Errorf("LastUpdate() = %v, want %v (not advanced)", b.LastUpdate(), mtime)
	}
}

func TestCheck_Timeout(t *testing.T) {
	w, b, log, path := newTestWatcher(t)
	mtime := time.Now().Add(-time.Minute).Truncate(time.Second)
	writeAt(t, path, bannerYAML, mtime)

	if _, ok := b.BeginRead(); !ok {
		t.Fatal("BeginRead() failed")
	}
	defer b.EndRead()

	err := w.Check(context.Background())
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Check() error = %v, want TimeoutError", err)
	}
	if timeoutErr.Timeout != b.Timeout() {
		t.Errorf("Timeout = %v, want %v", timeoutErr.Timeout, b.Timeout())
	}
	if log.last() != ResultTimeout {
		t.Errorf("result = %q, want %q", log.last(), ResultTimeout)
	}
	if len(b.Current().Config.Honeywires) != 0 {
		t.Error("timed-out publish installed the new rules")
	}

	// The discarded file is not retried until it changes again.
	if err := w.Check(context.Background()); err != nil {
		t.Errorf("second Check() error = %v", err)
	}
	if log.last() != ResultUnchanged {
		t.Errorf("result = %q, want %q", log.last(), ResultUnchanged)
	}
}

func TestCheck_CancelledContext(t *testing.T) {
	w, _, _, _ := newTestWatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.Check(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Check() error = %v, want context.Canceled", err)
	}
}

func TestWatcher_StartStop(t *testing.T) {
	w, _, _, _ := newTestWatcher(t)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !w.Running() {
		t.Error("Running() = false after Start")
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded")
	}

	w.Stop()
	if w.Running() {
		t.Error("Running() = true after Stop")
	}
	w.Stop()
}

func TestWatcher_InvalidInterval(t *testing.T) {
	w := New(Config{Path: "/tmp/honeyaml.yaml"}, book.New(0), nil, nil)
	if err := w.Start(context.Background()); err == nil {
		t.Error("Start() with zero interval succeeded")
	}
}

func TestWatcher_StopsOnContextCancel(t *testing.T) {
	w, _, _, _ := newTestWatcher(t)
	ctx, cancel := context.WithCancel(context.Background())

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for w.Running() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if w.Running() {
		t.Error("watcher still running after context cancel")
	}
}

func TestWatcher_NotifyTriggersCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "honeyaml.yaml")
	b := book.New(time.Second)
	log := &resultLog{}
	w := New(Config{
		Path:             path,
		PollInterval:     time.Hour,
		Watch:            true,
		DebounceInterval: 10 * time.Millisecond,
	}, b, nil, log)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(bannerYAML), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(b.Current().Config.Honeywires) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(b.Current().Config.Honeywires) != 1 {
		t.Fatalf("notification did not trigger a reload (last result %q)", log.last())
	}
}

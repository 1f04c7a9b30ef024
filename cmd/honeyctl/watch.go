package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/honeywire/pkg/book"
	"mercator-hq/honeywire/pkg/cli"
	"mercator-hq/honeywire/pkg/reload"
)

var watchFlags struct {
	format       string
	pollInterval time.Duration
	notify       bool
}

var watchCmd = &cobra.Command{
	Use:   "watch [honeyaml]",
	Short: "Follow a honeyaml file like an injected agent",
	Long: `Load a honeyaml file with the same reload loop an injected agent runs and
print the derived rules every time a new version is published.

Edits that fail to parse are reported on stderr and the previous rules stay
in effect, exactly as they would inside a deceived process. Stop with Ctrl-C.

Examples:
  # Follow the configured honeyaml
  honeyctl watch

  # Follow a local file, checking every second
  honeyctl watch ./honeyaml.yaml --poll-interval 1s`,
	Args: cobra.MaximumNArgs(1),
	RunE: watchHoneyaml,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchFlags.format, "format", "text", "output format: text, json")
	watchCmd.Flags().DurationVar(&watchFlags.pollInterval, "poll-interval", 0, "time between checks (default: agent config)")
	watchCmd.Flags().BoolVar(&watchFlags.notify, "notify", true, "also check on filesystem notifications")
}

// publishPrinter prints the book's rules whenever a check publishes them.
type publishPrinter struct {
	mu        sync.Mutex
	path      string
	book      *book.Book
	formatter cli.Formatter
	out       io.Writer
	err       error
}

func (p *publishPrinter) RecordReload(result string) {
	if result != reload.ResultPublished {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	pair := p.book.Current()
	if err := p.formatter.FormatTo(p.out, newValidateResult(p.path, pair.Config)); err != nil && p.err == nil {
		p.err = err
	}
}

func (p *publishPrinter) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func watchHoneyaml(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(watchFlags.format))
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Honeyaml.Path
	if len(args) > 0 {
		path = args[0]
	}
	interval := cfg.Honeyaml.PollInterval
	if watchFlags.pollInterval > 0 {
		interval = watchFlags.pollInterval
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	return runWatch(ctx, outputOf(cmd), reload.Config{
		Path:         path,
		PollInterval: interval,
		Watch:        watchFlags.notify,
	}, cfg.Honeyaml.ReloadTimeout, formatter)
}

// runWatch follows wcfg.Path until ctx is done.
func runWatch(ctx context.Context, out io.Writer, wcfg reload.Config, timeout time.Duration, formatter cli.Formatter) error {
	b := book.New(timeout)
	printer := &publishPrinter{path: wcfg.Path, book: b, formatter: formatter, out: out}
	watcher := reload.New(wcfg, b, newLogger(os.Stderr), printer)

	// A broken file at startup is reported but still watched.
	if err := watcher.Check(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return cli.NewCommandError("watch", err)
	}
	defer watcher.Stop()

	<-ctx.Done()
	return printer.Err()
}

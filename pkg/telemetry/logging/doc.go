// Package logging provides the structured deception log.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - Structured logging in JSON or text format
//   - A file writer that takes an exclusive advisory lock for every write,
//     so several deceived processes can append to one log file
//   - Level gating (debug, info, warn, error)
//
// Writes never fail loudly. A deceived application must not notice the
// agent, so a log file that cannot be opened or locked only increments a
// drop counter.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "text",
//	    File:   "/var/log/deception.log",
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Shutdown()
//	slog.SetDefault(logger.Slog())
//
//	slog.Default().With("component", "intercept").Info("status line replaced", "fd", 7)
package logging

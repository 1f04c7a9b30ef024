package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/honeywire/pkg/cli"
	"mercator-hq/honeywire/pkg/fastpath"
	"mercator-hq/honeywire/pkg/honeywire"
	"mercator-hq/honeywire/pkg/honeywire/parser"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate [honeyaml]",
	Short: "Check a honeyaml file",
	Long: `Parse a honeyaml file and print the rules an agent would apply.

Every honeywire in the file is listed. The summary at the end shows the
interception groups the file switches on and which honeywire configured each
of them; only the first enabled honeywire of each kind takes effect.

Without an argument the honeyaml path from the agent configuration is used.

Examples:
  # Check a file before deploying it
  honeyctl validate ./honeyaml.yaml

  # Machine-readable output for CI
  honeyctl validate ./honeyaml.yaml --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: validateHoneyaml,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// validateResult is what validate prints.
type validateResult struct {
	Path       string                `json:"path"`
	Honeywires []honeywire.Honeywire `json:"honeywires"`
	Model      *fastpath.Model       `json:"model"`
	Sources    map[string]string     `json:"sources"`
}

func newValidateResult(path string, cfg *honeywire.Config) *validateResult {
	model := fastpath.Derive(cfg)
	sources := make(map[string]string, len(model.Sources))
	for kind, name := range model.Sources {
		sources[kind.String()] = name
	}
	return &validateResult{
		Path:       path,
		Honeywires: cfg.Honeywires,
		Model:      model,
		Sources:    sources,
	}
}

func (r *validateResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "%s: %d honeywire(s)\n", r.Path, len(r.Honeywires))
	for _, h := range r.Honeywires {
		state := "disabled"
		if h.Enabled {
			state = "enabled"
		}
		fmt.Fprintf(w, "  - %s (%s, %s)\n", displayName(h.Name), h.Kind, state)
		for _, op := range h.Operations {
			switch op.Type {
			case honeywire.OperationReplaceInplace:
				fmt.Fprintf(w, "      %s %s: %s\n", op.Type, op.Key, op.Value)
			default:
				fmt.Fprintf(w, "      %s %q\n", op.Type, op.Value)
			}
			for _, c := range op.Conditions {
				fmt.Fprintf(w, "        when path contains %s\n", c.Path)
			}
		}
	}

	m := r.Model
	fmt.Fprintln(w)
	fmt.Fprintf(w, "accept:  %s\n", onOff(m.Accept.Enabled))
	fmt.Fprintf(w, "receive: %s", onOff(m.Receive.Enabled))
	if m.Receive.Enabled {
		fmt.Fprintf(w, " (path %s)", m.Receive.MatchingPath)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "send:    %s\n", onOff(m.Send.Enabled))
	if m.Send.ReplaceHeader {
		fmt.Fprintf(w, "  header %s -> %q (from %s)\n", m.Send.AttributeKey, m.Send.Replacement,
			displayName(r.Sources[honeywire.KindHTTPHeader.String()]))
	}
	if m.Send.ReplaceStatus {
		fmt.Fprintf(w, "  status -> %q (from %s)\n", m.Send.StatusText,
			displayName(r.Sources[honeywire.KindResponseCode.String()]))
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func displayName(name string) string {
	if name == "" {
		return "<unnamed>"
	}
	return name
}

func validateHoneyaml(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(validateFlags.format))
	if err != nil {
		return err
	}

	path, err := honeyamlPath(args)
	if err != nil {
		return err
	}

	cfg, err := parser.ParseFile(path)
	if err != nil {
		return cli.NewCommandError("validate", err)
	}

	return formatter.FormatTo(outputOf(cmd), newValidateResult(path, cfg))
}

// honeyamlPath returns the path argument, or the one configured for the
// agent.
func honeyamlPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Honeyaml.Path, nil
}

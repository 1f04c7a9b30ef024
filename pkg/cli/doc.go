/*
Package cli provides the helpers shared by honeyctl commands.

Output Formatting:

Command results are printed as text or JSON. Values that know how to print
themselves for humans implement TextWriter; everything else falls back to
fmt:

	formatter, err := cli.NewFormatter(cli.FormatJSON)
	if err != nil {
		return err
	}
	return formatter.FormatTo(os.Stdout, result)

Signal Handling:

Long-running commands stop on SIGINT or SIGTERM:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
*/
package cli

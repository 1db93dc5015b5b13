// Command tfp-log views and analyzes TFP protocol capture files.
//
// Capture files are written by tfp-shell with the -protocol-log flag, or by
// any program that sets ipcon.Config.ProtocolLogger to a log.FileLogger.
//
// Usage:
//
//	tfp-log <command> [flags] <file.tlog>
//
// Commands:
//
//	view     View capture in human-readable format
//	export   Export capture to JSONL, CSV or raw packets
//	filter   Filter capture and write to new file
//	stats    Show statistics about the capture
//
// Examples:
//
//	# View only packets of one device
//	tfp-log view --uid XYZ session.tlog
//
//	# View only incoming packets
//	tfp-log view --direction in session.tlog
//
//	# Keep one connection
//	tfp-log filter --conn-id 6f1c2a9e -o one.tlog session.tlog
//
//	# Show statistics
//	tfp-log stats session.tlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tfp-protocol/tfp-go/cmd/tfp-log/commands"
)

const usage = `tfp-log - TFP Protocol Capture Analyzer

Usage:
  tfp-log <command> [flags] <file.tlog>

Commands:
  view     View capture in human-readable format
  export   Export capture to JSONL, CSV or raw packets
  filter   Filter capture and write to new file
  stats    Show statistics about the capture

Use "tfp-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "view":
		err = runView(args)
	case "export":
		err = runExport(args)
	case "filter":
		err = runFilter(args)
	case "stats":
		err = runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newFlagSet returns a flag set whose usage text starts with synopsis.
func newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "tfp-log %s - %s\n\nUsage:\n  tfp-log %s [flags] <file.tlog>\n\nFlags:\n", name, synopsis, name)
		fs.PrintDefaults()
	}
	return fs
}

// logPath returns the single positional argument.
func logPath(fs *flag.FlagSet) (string, error) {
	if fs.NArg() < 1 {
		fs.Usage()
		return "", fmt.Errorf("log file path required")
	}
	return fs.Arg(0), nil
}

func runView(args []string) error {
	fs := newFlagSet("view", "View capture in human-readable format")
	var opts commands.FilterOptions
	opts.Register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := logPath(fs)
	if err != nil {
		return err
	}

	filter, err := opts.Build()
	if err != nil {
		return err
	}
	return commands.RunView(path, filter, os.Stdout)
}

func runExport(args []string) error {
	fs := newFlagSet("export", "Export capture to JSONL, CSV or raw packets")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv, raw)")
	output := fs.String("o", "", "Output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := logPath(fs)
	if err != nil {
		return err
	}
	return commands.RunExport(path, *format, *output)
}

func runFilter(args []string) error {
	fs := newFlagSet("filter", "Filter capture and write to new file")
	var opts commands.FilterOptions
	opts.Register(fs)
	output := fs.String("o", "", "Output file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := logPath(fs)
	if err != nil {
		return err
	}
	if *output == "" {
		fs.Usage()
		return fmt.Errorf("output file (-o) required")
	}

	filter, err := opts.Build()
	if err != nil {
		return err
	}
	n, err := commands.RunFilter(path, *output, filter)
	if err != nil {
		return err
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
	return nil
}

func runStats(args []string) error {
	fs := newFlagSet("stats", "Show statistics about the capture")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := logPath(fs)
	if err != nil {
		return err
	}
	return commands.RunStats(path, os.Stdout)
}

package main

import (
	"fmt"
	"io"
	"os"
)

const version = "1.0.0"

func main() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}

// startServer is a variable so tests can replace the long-running server.
var startServer = runServe

// Run dispatches a subcommand and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return startServer(nil, stdout, stderr)
	}

	switch args[0] {
	case "serve", "server":
		return startServer(args[1:], stdout, stderr)
	case "evaluate":
		return runEvaluateCmd(args[1:], stdout, stderr)
	case "precheck":
		return runPreCheckCmd(args[1:], stdout, stderr)
	case "fee":
		return runFeeCmd(args[1:], stdout, stderr)
	case "score":
		return runScoreCmd(args[1:], stdout, stderr)
	case "zones":
		return runZonesCmd(args[1:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[1:], stdout, stderr)
	case "export":
		return runExportCmd(args[1:], stdout, stderr)
	case "version":
		_, _ = fmt.Fprintf(stdout, "landguard %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[0] != "" && args[0][0] == '-' {
			return startServer(args, stdout, stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintf(w, "LandGuard %s\n", version)
	_, _ = fmt.Fprintln(w, "Zoning compliance, fees and risk for land development applications.")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "USAGE:")
	_, _ = fmt.Fprintln(w, "  landguard <command> [flags]")
	_, _ = fmt.Fprintln(w, "")
	printCommand(w, "serve", "Run the HTTP API (default)")
	printCommand(w, "evaluate", "Evaluate an application file (--file, --catalog)")
	printCommand(w, "precheck", "Estimate the outcome of a draft (--file, --catalog)")
	printCommand(w, "fee", "Quote the processing fee (--area, --floors, --zone)")
	printCommand(w, "score", "Score risk (--rejected, --land-cover, --old-elevation, --new-elevation)")
	printCommand(w, "zones", "List zone regulations (--catalog)")
	printCommand(w, "verify", "Verify the configured decision ledger")
	printCommand(w, "export", "Export an evidence pack of the configured ledger")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %-10s %s\n", name, desc)
}

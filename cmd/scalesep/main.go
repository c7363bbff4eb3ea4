// Command scalesep runs the precipitation cascade over a sequence of radar
// maps, issues forecasts from its saved state, and converts IQ sample
// files to and from the 16-bit packed format.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/banshee-data/scalesep/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	command, rest := args[0], args[1:]
	var err error
	switch command {
	case "run":
		err = cmdRun(rest, stdout, stderr)
	case "forecast":
		err = cmdForecast(rest, stdout, stderr)
	case "inspect":
		err = cmdInspect(rest, stdout, stderr)
	case "pack":
		err = cmdPack(rest, stdout, stderr)
	case "unpack":
		err = cmdUnpack(rest, stdout, stderr)
	case "migrate":
		err = cmdMigrate(rest, stdout, stderr)
	case "serve":
		err = cmdServe(rest, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version.String())
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, pflag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "scalesep %s: %v\n", command, err)
		return 2
	default:
		fmt.Fprintf(stderr, "scalesep %s: %v\n", command, err)
		return 1
	}
}

var errUsage = errors.New("usage")

func usageErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{errUsage}, args...)...)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `scalesep - scale-separation cascade for radar rain maps

Usage: scalesep <command> [options]

Commands:
  run        Feed radar maps through the cascade and save its state
  forecast   Issue a smoothed rain forecast from the saved state
  inspect    Print the statistics and per-level model of a state file
  pack       Encode float32 IQ samples to 16-bit packed codes
  unpack     Decode 16-bit packed codes to float32 IQ samples
  migrate    Apply or report snapshot archive migrations
  serve      Serve the archive SQL console and level charts under /debug/
  version    Show the scalesep version
  help       Show this help message

Maps and samples are raw little-endian float32 files, row-major.

Examples:
  # Cold start and run three maps, 5 minutes apart
  scalesep run --config radar-a.json --start 2024-06-01T12:00:00Z a.f32 b.f32 c.f32

  # Twelve-step forecast from the state written by run
  scalesep forecast --config radar-a.json --steps 12 --out forecast/

  # Pack IQ samples with the high-SNR layout
  scalesep pack --high-snr samples.f32 samples.iq`)
}

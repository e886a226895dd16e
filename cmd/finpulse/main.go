// Command finpulse collects market data and news, asks a language model for a
// sentiment and volatility verdict, and pushes alerts to chat channels.
package main

import (
	"fmt"
	"io"
	"os"
	_ "time/tzdata"
)

const usage = `usage: finpulse <command> [flags]

commands:
  analyze       run one tick and print the result
  monitor       run the scheduler and the status server
  test-notify   send a test message through every enabled channel
  config-check  validate the configuration
  init          write config.yaml and .env templates
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "analyze":
		return runAnalyze(rest, stdout, stderr)
	case "monitor":
		return runMonitor(rest, stdout, stderr)
	case "test-notify":
		return runTestNotify(rest, stdout, stderr)
	case "config-check":
		return runConfigCheck(rest, stdout, stderr)
	case "init":
		return runInit(rest, stdout, stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	}
	fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
	return 2
}

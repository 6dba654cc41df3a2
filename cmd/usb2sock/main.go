package main

import (
	"fmt"
	"os"

	"github.com/ardnew/usb2sock/cmd/usb2sock/commands"
	"github.com/ardnew/usb2sock/pkg"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(pkg.ExitCode(err))
	}
}

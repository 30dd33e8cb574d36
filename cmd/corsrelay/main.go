// Package main is the entry point for the CORS relay.
package main

import (
	"context"
	"fmt"
	"os"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionString() string {
	return fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildTime)
}

// userAgent identifies the relay to the upstream service.
func userAgent() string {
	return "corsrelay/" + version
}

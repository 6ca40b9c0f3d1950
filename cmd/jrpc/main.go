// Command jrpc sends JSON-RPC 2.0 calls from the command line.
package main

import "os"

var (
	// Version, Commit and Date are set at build time via -ldflags "-X main.Version=..."
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

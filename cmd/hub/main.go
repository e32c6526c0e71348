// hub is the jobhub service and its operator CLI.
//
// Usage:
//
//	hub serve                       Run the hub HTTP service
//	hub countdown [--watch]         Time left until the next reward snapshot
//	hub test-endpoint <url>         Send one request to an HTTPS endpoint
//	hub jobs | job <id>             Read jobs from the marketplace API
//	hub resources | wallet          Read resources or the signed-in wallet
//	hub status                      Health and state of a running hub
//	hub invalidate <prefix>...      Mark cached keys stale on a running hub
//	hub sessions [end <id>]         List or end sessions on a running hub
//	hub maintenance on|off          Toggle maintenance mode on a running hub
//	hub config                      Print the effective configuration
package main

import (
	"fmt"
	"os"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

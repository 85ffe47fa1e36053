// tridentctl is the client for the Trident daemon's read and servicing
// operations, plus a few
// offline helpers (host-configuration validation, COSI inspection) that
// need no running daemon at all.
package main

import (
	"os"

	"trident/cmd/tridentctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Command zigate-transport is a thin operational CLI over the transport
// and command-coordination layer: open a link, submit one command, or
// monitor the inbound stream.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Command goatdesk is a terminal client for the support desk API:
// submit an inquiry, chat on a session, or watch the ticket board.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Command snapshot loads a threat feed once and prints statistics or a
// filtered, sorted threat list without starting the server.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/powerboxtech/mpc-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	_ "time/tzdata"

	"github.com/soyeahso/flowbook/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	go autorestart.RestartOnChange()

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// Command coach runs the Coach widget in a terminal: lines typed on stdin are
// sent as turns, replies are printed and spoken through ffplay.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/z-coach/internal/config"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd(cfg, envErr).Execute(); err != nil {
		os.Exit(1)
	}
}

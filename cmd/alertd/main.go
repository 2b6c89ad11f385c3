package main

import (
	"os"

	"candle-alerts/cmd/alertd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

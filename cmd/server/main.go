package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("summarize-gateway exited", "err", err)
		os.Exit(1)
	}
}

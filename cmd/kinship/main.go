package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/kinship/backend/internal/app"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"serve"}
	}
	if err := app.Run(context.Background(), args); err != nil {
		slog.Error("kinship exited", "command", args[0], "error", err)
		os.Exit(1)
	}
}

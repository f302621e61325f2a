package main

import (
	"log/slog"
	"os"

	"github.com/psds-microservice/field-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		slog.Error("field-service", "error", err)
		os.Exit(1)
	}
}

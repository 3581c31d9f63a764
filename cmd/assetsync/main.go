package main

import (
	"errors"
	"os"

	"github.com/masgolf/assetsync/cmd/assetsync/cmd"
	"github.com/masgolf/assetsync/internal/logger"
	"github.com/masgolf/assetsync/internal/model"
)

func main() {
	err := cmd.RootCmd().Execute()
	logger.Flush()
	if err == nil {
		return
	}

	// Partial failures already printed their report.
	var partial *model.PartialBatchFailure
	if errors.As(err, &partial) {
		os.Exit(2)
	}
	os.Exit(1)
}

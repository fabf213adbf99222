package main

import (
	"context"
	"errors"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		// The summary already explains a missed threshold.
		if errors.Is(err, errThresholdNotMet) {
			os.Exit(1)
		}

		exitOnError(err)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
)

var version = "dev"

func main() {
	rootCmd.Version = version
	ctx, stop := interruptContext(context.Background())
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

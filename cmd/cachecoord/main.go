// Package main is the entry point for the cachecoord command.
package main

import (
	"os"

	"github.com/huykn/cache-coordinator/cmd/cachecoord/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

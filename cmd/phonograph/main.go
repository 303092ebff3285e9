// Package main is the entry point of the phonograph CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/phonograph/internal/cli"

	// Register source readers
	_ "github.com/leapstack-labs/phonograph/pkg/sources/api"
	_ "github.com/leapstack-labs/phonograph/pkg/sources/csv"
	_ "github.com/leapstack-labs/phonograph/pkg/sources/duckdb"
	_ "github.com/leapstack-labs/phonograph/pkg/sources/memory"
	_ "github.com/leapstack-labs/phonograph/pkg/sources/postgres"
	_ "github.com/leapstack-labs/phonograph/pkg/sources/sqlite"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

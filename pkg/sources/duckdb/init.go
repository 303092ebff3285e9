// This file registers the DuckDB reader with the source registry.
// Import this package with a blank identifier to register the reader:
//
//	import _ "github.com/leapstack-labs/phonograph/pkg/sources/duckdb"
package duckdb

import "github.com/leapstack-labs/phonograph/pkg/source"

func init() {
	source.Register("duckdb", Factory)
}

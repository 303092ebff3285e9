package sqlite

import "github.com/leapstack-labs/phonograph/pkg/source"

func init() {
	source.Register("sqlite", Factory)
}

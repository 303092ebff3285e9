package postgres

import "github.com/leapstack-labs/phonograph/pkg/source"

func init() {
	source.Register("postgres", Factory)
}

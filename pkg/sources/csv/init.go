package csv

import "github.com/leapstack-labs/phonograph/pkg/source"

func init() {
	source.Register("csv", Factory)
}

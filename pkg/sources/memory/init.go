package memory

import "github.com/leapstack-labs/phonograph/pkg/source"

func init() {
	source.Register("memory", Factory)
}

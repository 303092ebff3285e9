package api

import "github.com/leapstack-labs/phonograph/pkg/source"

func init() {
	source.Register("api", Factory)
}

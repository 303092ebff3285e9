package commands

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/leapstack-labs/phonograph/internal/stream"
	"github.com/leapstack-labs/phonograph/pkg/source"
	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display Phonograph version, build information and the compiled-in sources and stream backends.`,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Phonograph v%s\n", version)
			_, _ = fmt.Fprintf(out, "Schema-mapped batch and streaming ingestion (%s %s/%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			_, _ = fmt.Fprintf(out, "Sources: %s\n", strings.Join(source.ListDrivers(), ", "))
			backends := stream.Backends()
			if len(backends) == 0 {
				_, _ = fmt.Fprintln(out, "Stream backends: none (built without cgo)")
				return
			}
			_, _ = fmt.Fprintf(out, "Stream backends: %s\n", strings.Join(backends, ", "))
		},
	}
}

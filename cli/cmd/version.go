package cmd

import (
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/sopimagenta/ganworker/cli/render"
	"github.com/sopimagenta/ganworker/ipc"
	"github.com/sopimagenta/ganworker/types"
)

// VersionResponse reports build and protocol information.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Go      string `json:"go"`
	// The wire protocol is not negotiated: host and worker must come from
	// the same build. Limits are the decoder defaults.
	MaxBatch uint32 `json:"max_batch"`
	MaxEdits uint32 `json:"max_edits"`
}

// VersionCommand reports the version without starting a worker.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Flags: ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			if c.Bool("tui") {
				return cli.Exit("--tui is not supported for version command", exitUsage)
			}
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(newVersionResponse(commit))
		},
	}
}

func newVersionResponse(commit string) VersionResponse {
	limits := ipc.DefaultLimits()
	return VersionResponse{
		Version:  types.Version,
		Commit:   commit,
		Go:       runtime.Version(),
		MaxBatch: limits.MaxCount,
		MaxEdits: limits.MaxEdits,
	}
}

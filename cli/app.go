// Package cli contains the camtrack command line tool.
package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	generalFlagConfig = "config"
	generalFlagDebug  = "debug"

	trackFlagFake     = "fake"
	trackFlagCamera   = "camera"
	trackFlagDuration = "duration"
	trackFlagInterval = "interval"
	trackFlagLocate   = "locate"
	trackFlagSnapshot = "snapshot-dir"

	animateFlagName = "animation"
	animateFlagLoop = "loop"
)

var app = &cli.App{
	Name:            "camtrack",
	Usage:           "track markers through webcams and animate CAD components",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    generalFlagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:    generalFlagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:   "devices",
			Usage:  "list the video capture devices",
			Action: DevicesAction,
		},
		{
			Name:      "calibrate",
			Usage:     "calibrate the configured cameras and print their homographies",
			ArgsUsage: "[camera...]",
			Action:    CalibrateAction,
		},
		{
			Name:  "track",
			Usage: "track the marker through the configured cameras",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  trackFlagFake,
					Usage: "replace every camera with a synthetic one",
				},
				&cli.StringSliceFlag{
					Name:  trackFlagCamera,
					Usage: "only track through these cameras",
				},
				&cli.DurationFlag{
					Name:  trackFlagDuration,
					Usage: "stop after this long instead of waiting for an interrupt",
				},
				&cli.DurationFlag{
					Name:  trackFlagInterval,
					Value: time.Second,
					Usage: "how often to print statuses and rays",
				},
				&cli.BoolFlag{
					Name:  trackFlagLocate,
					Usage: "triangulate the marker when two or more cameras see it",
				},
				&cli.PathFlag{
					Name:  trackFlagSnapshot,
					Usage: "write the last annotated frame of every camera to `DIR` on exit",
				},
			},
			Action: TrackAction,
		},
		{
			Name:  "animate",
			Usage: "play an animation and print the component transforms",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  animateFlagName,
					Usage: "animation to play, required when more than one is configured",
				},
				&cli.BoolFlag{
					Name:  animateFlagLoop,
					Usage: "loop until interrupted",
				},
			},
			Action: AnimateAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

var warningPrefix = color.New(color.Bold, color.FgYellow)

// warningf prints a message prefixed with a bold yellow "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, "%s "+format+"\n", append([]interface{}{warningPrefix.Sprint("Warning:")}, a...)...)
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ravenlinux/raven-liveboot/internal/utils"
	"github.com/ravenlinux/raven-liveboot/internal/version"
	"github.com/ravenlinux/raven-liveboot/pkg/sequence"
	"github.com/spectrocloud-labs/herd"
	"github.com/urfave/cli/v2"
)

// Assemble the live session and hand PID 1 to the real init.
func main() {
	app := cli.NewApp()
	app.Name = "raven-liveboot"
	app.Version = version.GetVersion()
	app.Authors = []*cli.Author{{Name: "RavenLinux authors"}}
	app.Copyright = "RavenLinux authors"
	app.Action = func(c *cli.Context) error {
		utils.SetLogger()

		v := version.Get()
		utils.Log.Info().Str("commit", v.GitCommit).Str("compiled with", v.GoVersion).Str("version", v.Version).Msg("raven-liveboot")

		cmdline, _ := os.ReadFile(utils.GetHostProcCmdline())
		utils.Log.Debug().Str("content", string(cmdline)).Msg("cmdline")

		s := sequence.NewState(utils.Log)
		s.InitArgs = c.Args().Slice()

		g := herd.DAG(herd.EnableInit)
		if err := s.LogIfErrorAndReturn(s.Register(g), "registering stages"); err != nil {
			return err
		}

		utils.Log.Info().Msg(s.WriteDAG(g))

		if c.Bool("dry-run") {
			return nil
		}

		err := g.Run(context.Background())
		utils.Log.Info().Msg(s.WriteDAG(g))
		s.LogIfError(err, "running stages")

		// A successful boot never gets here: the switch-root stage
		// replaces this process. Anything else goes to the rescue
		// shell, which does not return either.
		s.Rescue()
		return nil
	}
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name: "dry-run",
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:  "version",
			Usage: "version",
			Action: func(_ *cli.Context) error {
				v := version.Get()
				fmt.Printf("raven-liveboot %s (commit %s, %s)\n", v.Version, v.GitCommit, v.GoVersion)
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

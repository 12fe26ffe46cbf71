// Command hugeplane runs the shared-memory data plane.
package main

import (
	"bytes"
	"os"
	"os/signal"
	"sort"

	"github.com/urfave/cli/v2"
	"github.com/usnistgov/hugeplane/core/logging"
	"github.com/usnistgov/hugeplane/core/version"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var logger = logging.New("main")

var interrupt = make(chan os.Signal, 1)

var app = &cli.App{
	Version: version.V.String(),
	Usage:   "Move frames of HugeBlob descriptors through lock-free rings and process them.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "log",
			Usage:   "log levels, such as `W,channel=D`",
			EnvVars: []string{logging.EnvVar},
		},
	},
	Before: func(c *cli.Context) error {
		if e := logging.Configure(c.String("log")); e != nil {
			return cli.Exit(e, 2)
		}
		signal.Notify(interrupt, unix.SIGINT, unix.SIGTERM)
		return nil
	},
}

func defineCommand(command *cli.Command) {
	app.Commands = append(app.Commands, command)
}

func main() {
	var uname unix.Utsname
	unix.Uname(&uname)
	logger.Debug("hugeplane starting",
		zap.Any("version", version.V),
		zap.Int("uid", os.Getuid()),
		zap.ByteString("linux", bytes.TrimRight(uname.Release[:], string([]byte{0}))),
	)

	sort.Sort(cli.CommandsByName(app.Commands))
	e := app.Run(os.Args)
	logging.Sync()
	if e != nil {
		logger.Fatal("hugeplane error", zap.Error(e))
	}
}

// Package main runs the audio output switch as a standalone process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/viamrobotics/usbaudio/audioswitch"
	"github.com/viamrobotics/usbaudio/board"
	"github.com/viamrobotics/usbaudio/descriptor"
	"github.com/viamrobotics/usbaudio/logging"
	"github.com/viamrobotics/usbaudio/notify"
	"github.com/viamrobotics/usbaudio/usb"
)

const (
	flagConfig      = "config"
	flagDebug       = "debug"
	flagLogFile     = "log-file"
	flagInternalCmd = "internal-cmd"
	flagExternalCmd = "external-cmd"
	flagSysfsRoot   = "sysfs-root"
)

func main() {
	app := &cli.App{
		Name:  "usbaudio",
		Usage: "route audio to a USB headset when one is attached",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.PathFlag{
				Name:  flagLogFile,
				Usage: "also append logs to this file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "watch for external audio devices and switch output",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagConfig,
						Aliases:  []string{"c"},
						Usage:    "path to the JSON config file, reloaded on change",
						Required: true,
					},
					&cli.StringFlag{
						Name:  flagInternalCmd,
						Usage: "command run to route audio to the internal speakers",
					},
					&cli.StringFlag{
						Name:  flagExternalCmd,
						Usage: "command run to route audio to the external device",
					},
				},
				Action: runAction,
			},
			{
				Name:  "scan",
				Usage: "list USB devices and whether each exposes an audio interface",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:  flagSysfsRoot,
						Usage: "where USB devices are listed",
						Value: usb.DefaultSysfsRoot,
					},
				},
				Action: scanAction,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const logFileMaxSizeMB = 10

func newLogger(c *cli.Context) logging.Logger {
	construct := logging.NewLogger
	if c.Bool(flagDebug) {
		construct = logging.NewDebugLogger
	}
	logger := construct("usbaudio")
	if path := c.Path(flagLogFile); path != "" {
		logger.AddAppender(logging.NewFileAppender(path, logFileMaxSizeMB))
	}
	return logger
}

func runAction(c *cli.Context) (err error) {
	logger := newLogger(c)
	defer utils.UncheckedErrorFunc(logger.Sync)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := c.Path(flagConfig)
	fileConf, err := readConfigFile(path)
	if err != nil {
		return err
	}
	b, err := fileConf.openBoard(ctx, logger.Sublogger("board"))
	if err != nil {
		return err
	}
	enumerator, closeEnumerator := defaultEnumerator()

	audioPath := &commandPath{
		internal: c.String(flagInternalCmd),
		external: c.String(flagExternalCmd),
		logger:   logger.Sublogger("path"),
	}
	deps := audioswitch.Deps{
		Enumerator: enumerator,
		Sinks:      []notify.Sink{notify.LogSink{Logger: logger.Sublogger("notify")}},
	}
	if b != nil {
		deps.Boards = map[string]board.Board{fileConf.Board.Name: b}
	}

	comp, err := audioswitch.New("usb_audio", fileConf.audio, deps, audioPath, logger.Sublogger("switch"))
	if err != nil {
		return multierr.Combine(err, closeBoard(ctx, b), closeEnumerator())
	}
	defer func() {
		err = multierr.Combine(err, comp.Close(context.Background()), closeBoard(context.Background(), b), closeEnumerator())
	}()
	comp.DumpConfig(ctx)
	if err := comp.Start(ctx); err != nil {
		return err
	}

	reloader, err := newReloader(path, comp, logger.Sublogger("reload"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, reloader.Close())
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func closeBoard(ctx context.Context, b board.Board) error {
	if b == nil {
		return nil
	}
	return b.Close(ctx)
}

func scanAction(c *cli.Context) error {
	enumerator, closeEnumerator := defaultEnumerator()
	if enumerator == nil {
		enumerator = usb.NewSysfsEnumerator(c.Path(flagSysfsRoot))
	}
	defer func() {
		if err := closeEnumerator(); err != nil {
			fmt.Fprintln(c.App.ErrWriter, err)
		}
	}()

	devices, err := enumerator.Devices(c.Context)
	if err != nil {
		return errors.Wrap(err, "listing usb devices")
	}
	fmt.Fprintln(c.App.Writer, scanTable(c.Context, devices))
	return nil
}

func scanTable(ctx context.Context, devices []usb.Device) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Device", "Interfaces", "Audio"})
	for i, d := range devices {
		ifaces, audio := describe(ctx, d)
		t.AppendRow(table.Row{i, d.Description().String(), ifaces, audio})
	}
	return t.Render()
}

// describe returns the device's interface classes and whether one of them is audio.
func describe(ctx context.Context, d usb.Device) (string, string) {
	h, err := d.Open(ctx)
	if err != nil {
		return "unreadable: " + err.Error(), "?"
	}
	defer utils.UncheckedErrorFunc(h.Close)
	buf, err := h.ConfigDescriptor(ctx)
	if err != nil {
		return "unreadable: " + err.Error(), "?"
	}
	ifaces, err := descriptor.Interfaces(buf)
	if err != nil {
		return "malformed: " + err.Error(), "no"
	}
	classes := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		classes = append(classes, fmt.Sprintf("%d:0x%02x", iface.Number, iface.Class))
	}
	audio := "no"
	if descriptor.HasClass(buf, descriptor.ClassAudio) {
		audio = "yes"
	}
	return strings.Join(classes, " "), audio
}

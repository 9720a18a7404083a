package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soocke/board-calibrator-go/app"
	"github.com/soocke/board-calibrator-go/config"
	"github.com/soocke/board-calibrator-go/domain/calibration"
	"github.com/soocke/board-calibrator-go/images"
)

func NewRunCommand() *cobra.Command {
	var (
		source   string
		frame    string
		fallback string
		addr     string
		board    string
		camera   int
		debug    bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the calibration loop and the status server",
		Long: `Run captures frames from the configured source, calibrates onto the board and
serves the rectified image over HTTP until interrupted.

Flags override the values read from the config file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("source") {
				cfg.Source = source
			}
			if flags.Changed("frame") {
				cfg.FramePath = frame
				if !flags.Changed("source") {
					cfg.Source = config.SourceFile
				}
			}
			if flags.Changed("fallback") {
				cfg.FallbackPath = fallback
			}
			if flags.Changed("addr") {
				cfg.ListenAddr = addr
			}
			if flags.Changed("camera") {
				cfg.CameraDevice = camera
			}
			if flags.Changed("board") {
				w, h, err := images.ParseSize(board)
				if err != nil {
					return err
				}
				cfg.BoardWidth, cfg.BoardHeight = w, h
			}
			if debug {
				cfg.Debug = true
			}
			_ = cfg.Validate()

			c, err := app.BuildContainer(cfg, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			c.Controller.AddListener(func(prev, next calibration.State) {
				fmt.Fprintf(out, "%s -> %s\n", stateString(prev), stateString(next))
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a := app.NewApp(c)
			return a.Run(ctx, func() {
				if a.Addr() != "" {
					fmt.Fprintf(out, "Serving on http://%s\n", a.Addr())
				}
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&source, "source", config.SourceScreen, "frame source (screen, camera, file)")
	f.StringVar(&frame, "frame", "", "image file served as the camera frame; implies --source file")
	f.StringVar(&fallback, "fallback", "", "image file used when the source has no frame")
	f.StringVar(&addr, "addr", "", "status server listen address; empty disables it")
	f.StringVar(&board, "board", "", "rectified board size as WxH")
	f.IntVar(&camera, "camera", 0, "camera device index")
	f.BoolVar(&debug, "debug", false, "enable debug logging and runtime loggers")
	return cmd
}

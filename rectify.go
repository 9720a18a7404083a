package main

import (
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/soocke/board-calibrator-go/domain/calibration"
	"github.com/soocke/board-calibrator-go/domain/capture"
	"github.com/soocke/board-calibrator-go/domain/geometry"
	"github.com/soocke/board-calibrator-go/domain/recognizer"
	"github.com/soocke/board-calibrator-go/images"
)

func NewRectifyCommand() *cobra.Command {
	var (
		quad  string
		out   string
		board string
	)
	cmd := &cobra.Command{
		Use:   "rectify IMAGE",
		Short: "Rectify the board in a single image",
		Long: `Rectify maps the board in IMAGE onto an axis-aligned rectangle and writes it as PNG.

The corners come from --quad ("x,y;x,y;x,y;x,y", clockwise from top-left) or,
when omitted, from the marker recognizer.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			size := geometry.Size{Width: cfg.BoardWidth, Height: cfg.BoardHeight}
			if board != "" {
				w, h, err := images.ParseSize(board)
				if err != nil {
					return err
				}
				size = geometry.Size{Width: w, Height: h}
			}

			frame, err := capture.LoadFrame(args[0])
			if err != nil {
				return err
			}

			var q geometry.Quad
			if quad != "" {
				if q, err = parseQuad(quad); err != nil {
					return err
				}
			} else {
				rec := recognizer.NewMarkerRecognizer(logger, recognizer.ParamsFromConfig(cfg)).Recognize(frame)
				if !rec.Outcome.Found() {
					return errors.Wrap(calibration.ErrRecognitionMiss, args[0])
				}
				q = rec.Quad
				fmt.Fprintf(cmd.OutOrStdout(), "Recognized %s board at %v %v %v %v\n",
					rec.Outcome, q[0], q[1], q[2], q[3])
			}

			t, err := geometry.ComputeRectification(q, size)
			if err != nil {
				return err
			}
			img, err := geometry.ApplyTransform(frame, t, size, cfg.Background())
			if err != nil {
				return err
			}
			if err := imaging.Save(img, out); err != nil {
				return errors.Wrapf(err, "save %s", out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s board to %s\n", size, out)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&quad, "quad", "", "board corners in image pixels")
	f.StringVarP(&out, "out", "o", "board.png", "output PNG path")
	f.StringVar(&board, "board", "", "output size as WxH; defaults to the configured board size")
	return cmd
}

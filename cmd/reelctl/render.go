package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"reelrender/internal/acquire"
	"reelrender/internal/pkg/errors"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a local video file",
	Long: `Render a local video file to the configured canvas.

Example:
  reelctl render -i clip.mov -o reel.mp4 --text "Link in Bio" --speed 1.1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			return fmt.Errorf("--output is required")
		}

		o, err := loadOptions(cmd)
		if err != nil {
			return err
		}
		defer o.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		req := o.request
		req.Source = acquire.LocalFile{Path: o.input}
		res, err := o.service.Render(ctx, req)
		if err != nil {
			if stderr, ok := errors.GetFields(err)["stderr"].(string); ok && stderr != "" {
				fmt.Fprintln(os.Stderr, stderr)
			}
			return err
		}
		defer os.Remove(res.OutputPath)

		if err := moveFile(res.OutputPath, output); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%dx%d, %d bytes, %s, overlay=%s)\n",
			output, res.Width, res.Height, res.Size, res.Elapsed.Round(time.Millisecond), res.Overlay)
		return nil
	},
}

func init() {
	renderCmd.Flags().StringP("output", "o", "", "output mp4 path (required)")
}

// moveFile renames src to dst, copying when they sit on different devices.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reelrender/internal/render"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the ffmpeg invocation and caption document without rendering",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := loadOptions(cmd)
		if err != nil {
			return err
		}
		defer o.close()

		plan, err := o.service.Preview(cmd.Context(), o.input, o.request)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "overlay: %s (font %s %s)\n", plan.Overlay, plan.Font.Source, plan.Font.Path)
		if plan.Pipeline.Jitter != nil {
			fmt.Fprintf(out, "jitter:  %+v\n", *plan.Pipeline.Jitter)
		}
		fmt.Fprintf(out, "video:   %s\n", plan.Invocation.VideoFilter)
		if plan.Invocation.AudioFilter != "" {
			fmt.Fprintf(out, "audio:   %s\n", plan.Invocation.AudioFilter)
		}
		fmt.Fprintf(out, "command: %s\n", shellJoin(o.ffmpeg, render.NewFFmpegRunner(o.ffmpeg, o.log).Args(plan.Invocation)))
		if plan.Caption != nil {
			fmt.Fprintf(out, "\n%s", plan.Caption.String())
		}
		return nil
	},
}

func shellJoin(bin string, args []string) string {
	parts := []string{bin}
	for _, a := range args {
		if strings.ContainsAny(a, " '\";,[]:=") {
			a = strconv.Quote(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

package render

import (
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"strconv"

	pkgerrors "github.com/pkg/errors"
)

// MediaInfo is the subset of ffprobe output the service logs and tests check.
type MediaInfo struct {
	Width    int
	Height   int
	Duration float64
	HasAudio bool
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbePath returns the ffprobe binary that ships next to ffmpegPath. A bare
// command name resolves through PATH.
func ProbePath(ffmpegPath string) string {
	if ffmpegPath == "" || filepath.Base(ffmpegPath) == ffmpegPath {
		return "ffprobe"
	}
	return filepath.Join(filepath.Dir(ffmpegPath), "ffprobe")
}

// Probe runs the ffprobe binary at ffprobe on path.
func Probe(ctx context.Context, ffprobe, path string) (MediaInfo, error) {
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, ffprobe,
		"-loglevel", "error",
		"-show_format",
		"-show_streams",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return MediaInfo{}, pkgerrors.Wrapf(err, "probe %s with %s", path, ffprobe)
	}
	return parseProbe(string(out))
}

func parseProbe(raw string) (MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return MediaInfo{}, pkgerrors.WithStack(err)
	}

	var info MediaInfo
	foundVideo := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if !foundVideo {
				info.Width, info.Height = s.Width, s.Height
				foundVideo = true
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if !foundVideo {
		return MediaInfo{}, pkgerrors.New("no video stream found")
	}
	info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	return info, nil
}

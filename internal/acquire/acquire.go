// Package acquire materializes the source video of a render job on local
// disk, from a multipart upload, a remote URL or a local file.
package acquire

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"reelrender/internal/pkg/errors"
)

// sniffLen is how many leading bytes filetype needs to recognise a container.
const sniffLen = 261

// ErrTooLarge is wrapped when the payload exceeds the configured limit.
var ErrTooLarge = stderrors.New("video exceeds size limit")

// Reader materializes an already open stream, typically a multipart file.
type Reader struct {
	R        io.Reader
	Filename string
	// MaxBytes limits the copied size; zero means unlimited.
	MaxBytes int64
}

func (u Reader) Describe() string {
	return "upload:" + SanitizeFilename(u.Filename)
}

func (u Reader) Materialize(ctx context.Context, dir, jobID string) (string, error) {
	return save(ctx, u.R, dir, jobID, u.MaxBytes, "acquire.upload")
}

// LocalFile copies a file from disk so the job never deletes the original.
type LocalFile struct {
	Path string
}

func (l LocalFile) Describe() string { return "file:" + l.Path }

func (l LocalFile) Materialize(ctx context.Context, dir, jobID string) (string, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return "", errors.ValidationField("input", fmt.Sprintf("cannot open %s", l.Path)).WithField("cause", err.Error())
	}
	defer f.Close()
	return save(ctx, f, dir, jobID, 0, "acquire.file")
}

// save sniffs the head of r, then writes the whole stream to
// dir/in_<jobID><ext>. Nothing is created when the payload is not a video.
func save(ctx context.Context, r io.Reader, dir, jobID string, maxBytes int64, op string) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", errors.Acquisition(err, op, "failed to read video")
	}
	head = head[:n]
	if n == 0 {
		return "", errors.ValidationField("video", "video is empty")
	}

	ext, err := sniffVideo(head)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Acquisition(err, op, "failed to create upload directory")
	}
	path := filepath.Join(dir, "in_"+SanitizeFilename(jobID)+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Acquisition(err, op, "failed to create input file")
	}

	body := io.MultiReader(bytes.NewReader(head), ctxReader{ctx: ctx, r: r})
	if maxBytes > 0 {
		body = io.LimitReader(body, maxBytes+1)
	}
	written, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && maxBytes > 0 && written > maxBytes {
		err = fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxBytes)
	}
	if err != nil {
		_ = os.Remove(path)
		if stderrors.Is(err, ErrTooLarge) {
			return "", errors.ValidationField("video", err.Error())
		}
		return "", errors.Acquisition(err, op, "failed to save video")
	}
	return path, nil
}

// sniffVideo returns the file extension for a recognised video container.
func sniffVideo(head []byte) (string, error) {
	kind, err := filetype.Match(head)
	if err != nil || kind.MIME.Type == "" {
		return "", errors.ValidationField("video", "unrecognised file type, expected a video")
	}
	if kind.MIME.Type != "video" {
		return "", errors.ValidationField("video", fmt.Sprintf("expected a video, got %s", kind.MIME.Value)).
			WithField("mime", kind.MIME.Value)
	}
	return "." + kind.Extension, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// SanitizeFilename strips path separators and traversal from s.
func SanitizeFilename(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "..", "")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if s == "" {
		return "input"
	}
	return s
}

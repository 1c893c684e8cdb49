// Package delivery hands a finished render back to the caller: published
// to storage behind a URL, streamed, or inlined as base64.
package delivery

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"reelrender/internal/pkg/errors"
	"reelrender/internal/pkg/logger"
	"reelrender/internal/ports"
	"reelrender/internal/render"
)

const mimeMP4 = "video/mp4"

// SignedURLTTL is requested from providers that can sign URLs.
var SignedURLTTL = 24 * time.Hour

// URLResponse is the body of a url mode response.
type URLResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// Base64Response is the body of a base64 mode response.
type Base64Response struct {
	Status     string `json:"status"`
	FileBase64 string `json:"fileBase64"`
	MimeType   string `json:"mimeType"`
}

type Deliverer struct {
	sp  ports.StorageProvider
	log *logger.Logger
}

func New(sp ports.StorageProvider, log *logger.Logger) *Deliverer {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Deliverer{sp: sp, log: log.WithComponent("delivery")}
}

// Publish uploads the render to the storage provider and removes the local
// copy. baseURL is the public origin the /renders route is served from.
func (d *Deliverer) Publish(ctx context.Context, res *render.Result, baseURL string) (URLResponse, error) {
	log := d.log.FromContext(ctx)
	defer d.discard(log, res.OutputPath)

	f, st, err := open(res.OutputPath)
	if err != nil {
		return URLResponse{}, err
	}
	defer f.Close()

	out, err := d.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   filepath.Base(res.OutputPath),
		ContentType: mimeMP4,
		Reader:      f,
		Size:        st.Size(),
	})
	if err != nil {
		return URLResponse{}, errors.WrapWithCode(err, errors.CodeUnavailable, "delivery.publish", "failed to publish render").
			WithField("provider", d.sp.Provider())
	}

	url := strings.TrimRight(baseURL, "/") + "/renders/" + out.ObjectKey
	if signed, err := d.sp.GetSignedURL(ctx, out.ObjectKey, SignedURLTTL); err != nil {
		log.Warn("signed url unavailable, using proxy route", "object_key", out.ObjectKey, "error", err.Error())
	} else if signed.URL != "" {
		url = signed.URL
	}
	log.Info("render published", "provider", d.sp.Provider(), "object_key", out.ObjectKey, "size", out.Size)
	return URLResponse{Success: true, URL: url, Width: res.Width, Height: res.Height}, nil
}

// Stream writes the render as video/mp4 and removes it afterwards. Once
// the header is written a copy failure can only be logged.
func (d *Deliverer) Stream(ctx context.Context, w http.ResponseWriter, res *render.Result) error {
	log := d.log.FromContext(ctx)
	defer d.discard(log, res.OutputPath)

	f, st, err := open(res.OutputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w.Header().Set("Content-Type", mimeMP4)
	w.Header().Set("Content-Length", strconv.FormatInt(st.Size(), 10))
	w.Header().Set("Content-Disposition", `inline; filename="`+filepath.Base(res.OutputPath)+`"`)
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, f)
	if err != nil {
		log.Warn("stream interrupted", "written", n, "error", err.Error())
		return nil
	}
	log.Debug("render streamed", "bytes", n)
	return nil
}

// Base64 reads the render into memory, encodes it and removes the file.
func (d *Deliverer) Base64(ctx context.Context, res *render.Result) (Base64Response, error) {
	log := d.log.FromContext(ctx)
	defer d.discard(log, res.OutputPath)

	data, err := os.ReadFile(res.OutputPath)
	if err != nil {
		return Base64Response{}, errors.Readback(err, "delivery.base64")
	}
	return Base64Response{
		Status:     "done",
		FileBase64: base64.StdEncoding.EncodeToString(data),
		MimeType:   mimeMP4,
	}, nil
}

func open(path string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Readback(err, "delivery.open")
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, errors.Readback(err, "delivery.stat")
	}
	return f, st, nil
}

func (d *Deliverer) discard(log *logger.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove delivered render", "path", path, "error", err.Error())
	}
}

package handlers

import (
	stderrors "errors"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"reelrender/internal/acquire"
	"reelrender/internal/httpkit"
	"reelrender/internal/models"
	"reelrender/internal/pkg/errors"
	"reelrender/internal/render"
	"reelrender/internal/settings"
)

const (
	// multipart parts above this spill to temp files, removed by net/http.
	multipartMemory = 32 << 20
	maxJSONBody     = 1 << 20
)

type renderRequest struct {
	VideoURL string   `json:"videoUrl"`
	Text     string   `json:"text"`
	Speed    *float64 `json:"speed,omitempty"`
	Response string   `json:"response"`
}

// PostRender renders an uploaded (multipart "video") or remote (JSON
// "videoUrl") video and answers in the requested response mode.
func (h *Handler) PostRender(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	set := h.settings.Snapshot()

	var (
		src      render.Source
		text     string
		speed    float64
		respMode string
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if h.maxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+maxJSONBody)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if stderrors.As(err, &tooLarge) {
				return errors.ValidationField("video", "video exceeds size limit").WithField("limit_bytes", h.maxUploadBytes)
			}
			return errors.Validation("invalid multipart form").WithField("cause", err.Error())
		}
		file, header, err := r.FormFile("video")
		if err != nil {
			return errors.ValidationField("video", "No video file uploaded (field 'video').")
		}
		defer file.Close()

		src = acquire.Reader{R: file, Filename: header.Filename, MaxBytes: h.maxUploadBytes}
		text = r.FormValue("text")
		respMode = r.FormValue("response")
		if speed, err = parseSpeed(r.FormValue("speed")); err != nil {
			return err
		}

	case "application/json":
		var body renderRequest
		if err := httpkit.DecodeJSON(w, r, &body, maxJSONBody); err != nil {
			return errors.Validation("invalid JSON body").WithField("cause", err.Error())
		}
		if strings.TrimSpace(body.VideoURL) == "" {
			return errors.ValidationField("videoUrl", "videoUrl is required")
		}
		remote, err := h.fetcher.Remote(body.VideoURL)
		if err != nil {
			return err
		}
		src = remote
		text = body.Text
		respMode = body.Response
		if body.Speed != nil {
			if speed, err = checkSpeed(*body.Speed); err != nil {
				return err
			}
		}

	default:
		return errors.ValidationField("video", "No video file uploaded (field 'video').").
			WithField("content_type", mediaType)
	}

	mode := set.ResponseMode
	if strings.TrimSpace(respMode) != "" {
		m, err := settings.ParseResponseMode(respMode)
		if err != nil {
			return err
		}
		mode = m
	}

	res, err := h.render.Render(ctx, render.Request{
		Source:   src,
		Text:     text,
		Speed:    speed,
		Settings: set,
	})
	if err != nil {
		return err
	}

	switch mode {
	case models.ResponseStream:
		return h.delivery.Stream(ctx, w, res)
	case models.ResponseBase64:
		out, err := h.delivery.Base64(ctx, res)
		if err != nil {
			return err
		}
		httpkit.WriteJSON(w, http.StatusOK, out)
	default:
		out, err := h.delivery.Publish(ctx, res, h.baseURL(r))
		if err != nil {
			return err
		}
		httpkit.WriteJSON(w, http.StatusOK, out)
	}
	return nil
}

func parseSpeed(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.ValidationField("speed", "speed must be a number")
	}
	return checkSpeed(v)
}

// checkSpeed rejects non-positive values; the builder clamps the rest.
func checkSpeed(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, errors.ValidationField("speed", "speed must be a positive number")
	}
	return v, nil
}

// baseURL is the public origin of this service as seen by the client.
func (h *Handler) baseURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host
}

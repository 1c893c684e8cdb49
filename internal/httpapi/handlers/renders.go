package handlers

import (
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"reelrender/internal/pkg/errors"
	"reelrender/internal/ports"
)

// GetRender serves a published render. Seekable objects (localfs) go through
// http.ServeContent so players can issue range requests.
func (h *Handler) GetRender(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	rc, ct, size, err := h.sp.GetObject(ctx, name)
	if err != nil {
		if stderrors.Is(err, ports.ErrObjectNotFound) {
			return errors.NotFound("render", name)
		}
		return errors.WrapWithCode(err, errors.CodeUnavailable, "renders.get", "failed to read render").
			WithField("provider", h.sp.Provider())
	}
	defer rc.Close()

	if ct == "" {
		ct = "video/mp4"
	}
	w.Header().Set("Content-Type", ct)

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, time.Time{}, rs)
		return nil
	}
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.log.FromContext(ctx).Warn("render download interrupted", "name", name, "error", err.Error())
	}
	return nil
}

package handlers

import (
	"crypto/subtle"
	"html/template"
	"net/http"
	"strings"

	"reelrender/internal/httpkit"
	"reelrender/internal/models"
	"reelrender/internal/pkg/errors"
	"reelrender/internal/settings"
)

var adminPage = template.Must(template.New("admin").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>reelrender settings</title></head>
<body>
<h1>Render settings</h1>
{{if .Message}}<p class="{{.Class}}">{{.Message}}</p>{{end}}
<form method="post" action="/admin">
<input type="hidden" name="token" value="{{.Token}}">
<label>Width <input type="number" name="width" value="{{.S.Width}}"></label><br>
<label>Height <input type="number" name="height" value="{{.S.Height}}"></label><br>
<label>Font name <input name="font_name" value="{{.S.FontName}}"></label><br>
<label>Font size <input type="number" name="font_size" value="{{.S.FontSize}}"></label><br>
<label>Font size mode <select name="font_size_mode">
{{range .SizeModes}}<option value="{{.}}"{{if eq . $.S.FontSizeMode}} selected{{end}}>{{.}}</option>{{end}}
</select></label><br>
<label>Font color <input name="font_color" value="{{.S.FontColor}}"></label><br>
<label>Offset Y <input type="number" name="offset_y" value="{{.S.OffsetY}}"></label><br>
<label>Default text <input name="default_text" value="{{.S.DefaultText}}"></label><br>
<label>Overlay <select name="overlay_mode">
{{range .OverlayModes}}<option value="{{.}}"{{if eq . $.S.OverlayMode}} selected{{end}}>{{.}}</option>{{end}}
</select></label><br>
<label>Anchor <select name="anchor">
{{range .Anchors}}<option value="{{.}}"{{if eq . $.S.Anchor}} selected{{end}}>{{.}}</option>{{end}}
</select></label><br>
<label>Max line chars <input type="number" name="max_line_chars" value="{{.S.MaxLineChars}}"></label><br>
<label>Fade in (s) <input type="number" step="0.1" name="fade_in_seconds" value="{{.S.FadeInSeconds}}"></label><br>
<label>Jitter <input type="checkbox" name="jitter" value="true"{{if .S.Jitter}} checked{{end}}></label><br>
<label>Response <select name="response_mode">
{{range .ResponseModes}}<option value="{{.}}"{{if eq . $.S.ResponseMode}} selected{{end}}>{{.}}</option>{{end}}
</select></label><br>
<button type="submit">Save</button>
</form>
<p>Backend: {{.Backend}}</p>
</body>
</html>
`))

type adminView struct {
	S       models.Settings
	Token   string
	Backend string
	Message string
	Class   string

	SizeModes     []models.FontSizeMode
	OverlayModes  []models.OverlayMode
	Anchors       []models.Anchor
	ResponseModes []models.ResponseMode
}

// authorize returns the token when it matches ADMIN_PASSWORD.
func (h *Handler) authorize(r *http.Request) (string, error) {
	if h.adminPassword == "" {
		return "", errors.NotFound("page", r.URL.Path)
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.PostFormValue("token")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.adminPassword)) != 1 {
		return "", errors.Unauthorized("invalid admin token")
	}
	return token, nil
}

// GetAdmin renders the settings form.
func (h *Handler) GetAdmin(w http.ResponseWriter, r *http.Request) error {
	token, err := h.authorize(r)
	if err != nil {
		return err
	}
	return h.renderAdmin(w, http.StatusOK, adminView{S: h.settings.Snapshot(), Token: token})
}

// PostAdmin saves the submitted form. Validation failures re-render the
// form with the message and the current settings.
func (h *Handler) PostAdmin(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return errors.Validation("invalid form").WithField("cause", err.Error())
	}
	token, err := h.authorize(r)
	if err != nil {
		return err
	}

	patch := map[string]any{}
	for _, k := range settings.Keys() {
		if v, ok := r.PostForm[k]; ok && len(v) > 0 {
			patch[k] = strings.TrimSpace(v[0])
		}
	}
	// unchecked boxes are not submitted
	patch["jitter"] = r.PostFormValue("jitter") != ""

	saved, err := h.settings.Save(r.Context(), patch)
	if err != nil {
		if !errors.IsValidation(err) {
			return err
		}
		return h.renderAdmin(w, http.StatusBadRequest, adminView{
			S:       h.settings.Snapshot(),
			Token:   token,
			Message: adminMessage(err),
			Class:   "error",
		})
	}
	h.log.FromContext(r.Context()).Info("settings updated from admin")
	return h.renderAdmin(w, http.StatusOK, adminView{S: saved, Token: token, Message: "Saved.", Class: "ok"})
}

// GetAdminSettings returns the current snapshot as JSON.
func (h *Handler) GetAdminSettings(w http.ResponseWriter, r *http.Request) error {
	if _, err := h.authorize(r); err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"backend":  h.settings.Backend(),
		"settings": h.settings.Snapshot(),
	})
	return nil
}

func (h *Handler) renderAdmin(w http.ResponseWriter, status int, v adminView) error {
	v.Backend = h.settings.Backend()
	v.SizeModes = []models.FontSizeMode{models.FontSizeFixed, models.FontSizeAuto}
	v.OverlayModes = []models.OverlayMode{models.OverlayCaption, models.OverlayDrawText, models.OverlayNone}
	v.Anchors = []models.Anchor{models.AnchorBottom, models.AnchorCenter, models.AnchorTop}
	v.ResponseModes = []models.ResponseMode{models.ResponseURL, models.ResponseStream, models.ResponseBase64}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := adminPage.Execute(w, v); err != nil {
		h.log.Warn("admin template failed", "error", err.Error())
	}
	return nil
}

func adminMessage(err error) string {
	var e *errors.Error
	if errors.As(err, &e) {
		if f, ok := e.Fields["field"].(string); ok {
			return f + ": " + e.Message
		}
		return e.Message
	}
	return err.Error()
}

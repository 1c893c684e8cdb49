package httpkit

import (
	"encoding/json"
	"net/http"
)

// DecodeJSON decodes a single JSON object, rejecting unknown fields.
// maxBytes <= 0 leaves the body unbounded.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any, maxBytes int64) error {
	body := r.Body
	if maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/denizumutdereli/npsrisk/pkg/api/apierr"
)

const (
	mediaJSON    = "application/json"
	mediaMsgpack = "application/msgpack"
	mediaCSV     = "text/csv"
)

// mediaType returns the normalised media type of a Content-Type or Accept
// element. Missing values mean JSON.
func mediaType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return mediaJSON
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	switch mt {
	case "application/x-msgpack", "application/vnd.msgpack":
		return mediaMsgpack
	case "application/csv":
		return mediaCSV
	}
	return mt
}

func requestMediaType(r *http.Request) string {
	return mediaType(r.Header.Get("Content-Type"))
}

// acceptsMedia reports whether the Accept header lists want.
func acceptsMedia(r *http.Request, want string) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if mediaType(part) == want {
			return true
		}
	}
	return false
}

// decodeRequest reads a JSON or msgpack body into dst. It writes the error
// response itself and returns false when the body cannot be used.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	var err error
	switch mt := requestMediaType(r); mt {
	case mediaJSON:
		err = json.NewDecoder(r.Body).Decode(dst)
	case mediaMsgpack:
		err = msgpack.NewDecoder(r.Body).Decode(dst)
	default:
		apierr.UnsupportedMediaType(w, mt)
		return false
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierr.PayloadTooLarge(w, err.Error())
			return false
		}
		apierr.InvalidJSON(w)
		return false
	}
	return true
}

// writeResponse encodes v as msgpack when the client asked for it and as
// JSON otherwise.
func (s *Server) writeResponse(w http.ResponseWriter, r *http.Request, status int, v any) {
	if acceptsMedia(r, mediaMsgpack) {
		data, err := msgpack.Marshal(v)
		if err != nil {
			apierr.Internal(w, err.Error())
			return
		}
		w.Header().Set("Content-Type", mediaMsgpack)
		w.WriteHeader(status)
		_, _ = w.Write(data)
		return
	}
	w.Header().Set("Content-Type", mediaJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"hisab/internal/analytics"
	"hisab/internal/core"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object into v. Unknown fields, trailing
// data and oversized bodies are rejected as bad requests.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return badRequest{"request body too large"}
		case errors.Is(err, io.EOF):
			return badRequest{"request body is empty"}
		default:
			return badRequest{"invalid JSON: " + err.Error()}
		}
	}
	if dec.More() {
		return badRequest{"request body must contain a single JSON object"}
	}
	return nil
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest{fmt.Sprintf("invalid %s", name)}
	}
	return id, nil
}

// queryID parses an optional positive integer query parameter. It returns
// nil when the parameter is absent.
func queryID(r *http.Request, name string) (*int64, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return nil, badRequest{fmt.Sprintf("invalid %s", name)}
	}
	return &id, nil
}

// parseStatus reads the invite status filter, defaulting to pending.
func parseStatus(r *http.Request) (core.InviteStatus, error) {
	v := strings.TrimSpace(r.URL.Query().Get("status"))
	if v == "" {
		return core.InvitePending, nil
	}
	st := core.InviteStatus(strings.ToLower(v))
	if !st.IsValid() {
		return "", badRequest{fmt.Sprintf("invalid status %q", v)}
	}
	return st, nil
}

// parseWindow reads the comparison window in days. Empty means the 30-day
// window and "all" removes the lower bound.
func parseWindow(r *http.Request) (analytics.Window, error) {
	v := strings.TrimSpace(r.URL.Query().Get("days"))
	switch v {
	case "":
		return analytics.WindowMonth, nil
	case "all":
		return analytics.WindowAll, nil
	}
	days, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest{fmt.Sprintf("invalid days %q", v)}
	}
	w, ok := analytics.ParseWindow(days)
	if !ok {
		return 0, badRequest{fmt.Sprintf("unsupported window %d: use 7, 30, 90, 365 or all", days)}
	}
	return w, nil
}

// sanitizeInput removes control characters except tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

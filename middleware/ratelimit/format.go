package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }

// retryAfterSeconds rounds d up to whole seconds, never below 1.
func retryAfterSeconds(d time.Duration) int64 {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// resetUnix is the unix second at which a window of length d, starting now,
// ends.
func resetUnix(now time.Time, d time.Duration) int64 {
	if d <= 0 {
		return now.Unix()
	}
	return now.Add(d + time.Second - 1).Truncate(time.Second).Unix()
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiResponse{Success: false, Message: msg})
}

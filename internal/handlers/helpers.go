package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteMessage writes the standard single-message error body.
func WriteMessage(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"message": message,
	})
}

// ParseFeedIDs reads the repeated feed_ids query parameter. Values may also
// be comma-separated. Returns nil when the parameter is absent.
func ParseFeedIDs(r *http.Request) ([]int, error) {
	values := r.URL.Query()["feed_ids"]
	if len(values) == 0 {
		return nil, nil
	}

	var feedIDs []int
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.Atoi(part)
			if err != nil {
				return nil, err
			}
			feedIDs = append(feedIDs, id)
		}
	}
	return feedIDs, nil
}

// PathIntSegment parses the path segment at index (zero-based, after
// trimming slashes) as a positive integer id
func PathIntSegment(r *http.Request, index int) (int, bool) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if index >= len(parts) {
		return 0, false
	}
	id, err := strconv.Atoi(parts[index])
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// PathSegment returns the raw path segment at index (zero-based, after
// trimming slashes)
func PathSegment(r *http.Request, index int) (string, bool) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if index >= len(parts) || parts[index] == "" {
		return "", false
	}
	return parts[index], true
}

package http

import "net/http"

// NotFoundHandler returns a JSON 404 for unknown routes, naming the path so
// misdirected clients are easy to spot in error reports.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "no route for "+r.URL.Path)
	})
}

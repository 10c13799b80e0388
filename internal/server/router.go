package server

import (
	"net/http"
	"strings"
)

// AppHTTP is the surface the router dispatches to.
type AppHTTP interface {
	ServeAssets(http.ResponseWriter, *http.Request)
	ServeAsset(http.ResponseWriter, *http.Request, string)
	ServeInFlight(http.ResponseWriter, *http.Request)
	ServeProfile(http.ResponseWriter, *http.Request)
	ServePhotos(http.ResponseWriter, *http.Request)
	ServeReset(http.ResponseWriter, *http.Request, string)
	ServeHealth(http.ResponseWriter, *http.Request)
	WriteError(http.ResponseWriter, int, string)
}

type route struct {
	name   string
	target string
	method string
}

// NewHandler owns URL and method dispatch so the API never parses paths.
// metrics may be nil.
func NewHandler(app AppHTTP, metrics http.Handler) http.Handler {
	if app == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt, ok := parseRoute(r.URL.Path)
		if !ok {
			app.WriteError(w, http.StatusNotFound, "not found")
			return
		}
		if rt.name == "metrics" && metrics == nil {
			app.WriteError(w, http.StatusNotFound, "not found")
			return
		}
		if !methodAllowed(rt.method, r.Method) {
			w.Header().Set("Allow", allowHeader(rt.method))
			app.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		switch rt.name {
		case "assets":
			app.ServeAssets(w, r)
		case "asset":
			app.ServeAsset(w, r, rt.target)
		case "inflight":
			app.ServeInFlight(w, r)
		case "profile":
			app.ServeProfile(w, r)
		case "photos":
			app.ServePhotos(w, r)
		case "reset":
			app.ServeReset(w, r, rt.target)
		case "healthz":
			app.ServeHealth(w, r)
		case "metrics":
			metrics.ServeHTTP(w, r)
		}
	})
}

func parseRoute(path string) (route, bool) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return route{}, false
	}
	parts := strings.Split(trimmed, "/")
	for _, p := range parts {
		if p == "" {
			return route{}, false
		}
	}
	switch len(parts) {
	case 1:
		switch strings.ToLower(parts[0]) {
		case "assets":
			return route{name: "assets", method: http.MethodGet}, true
		case "inflight":
			return route{name: "inflight", method: http.MethodGet}, true
		case "profile":
			return route{name: "profile", method: http.MethodGet}, true
		case "health", "healthz":
			return route{name: "healthz", method: http.MethodGet}, true
		case "metrics":
			return route{name: "metrics", method: http.MethodGet}, true
		}
	case 2:
		switch strings.ToLower(parts[0]) {
		case "assets":
			return route{name: "asset", target: parts[1], method: http.MethodGet}, true
		case "profile":
			if strings.ToLower(parts[1]) == "photos" {
				return route{name: "photos", method: http.MethodPut}, true
			}
		case "reset":
			switch target := strings.ToLower(parts[1]); target {
			case "assets", "profile":
				return route{name: "reset", target: target, method: http.MethodPost}, true
			}
		}
	}
	return route{}, false
}

func methodAllowed(want, got string) bool {
	if got == want {
		return true
	}
	return want == http.MethodGet && got == http.MethodHead
}

func allowHeader(method string) string {
	if method == http.MethodGet {
		return "GET, HEAD"
	}
	return method
}

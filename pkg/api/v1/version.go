package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scopegate/scopegate/pkg/versions"
)

// VersionRouter sets up the version route.
func VersionRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/", getVersion)
	return r
}

func getVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, versions.GetVersionInfo())
}

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scopegate/scopegate/pkg/config"
	"github.com/scopegate/scopegate/pkg/networking"
)

// Router assembles all /api routes: the demo message routes plus the
// external passthroughs.
func Router(upstreams config.Upstreams, client networking.HTTPClient) http.Handler {
	r := chi.NewRouter()
	r.Mount("/external", ExternalRouter(upstreams, client))
	r.Mount("/custom", CustomRouter(upstreams, client))
	r.Get("/public", getPublic)
	r.Get("/private", getPrivate)
	r.Get("/private-scoped/readonly", scopedMessage("read messages"))
	r.Get("/private-scoped/write", scopedMessage("read and write messages"))
	r.Get("/private-scoped/delete", scopedMessage("delete messages"))
	return r
}

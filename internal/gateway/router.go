// ABOUTME: Route table mapping websocket paths to session flavors
// ABOUTME: Every session route runs behind the optional auth middleware

package gateway

import (
	"net/http"

	"github.com/2389/appstream-gateway/internal/auth"
	"github.com/2389/appstream-gateway/internal/session"
)

// sessionBuilder creates the session for one upgrade request. Path values are
// already resolved by the mux.
type sessionBuilder func(r *http.Request, deps session.Deps, info session.Info) session.Session

// sessionRoutes lists every websocket route and its flavor.
var sessionRoutes = []struct {
	pattern string
	build   sessionBuilder
}{
	{"/ws/apps/{app_uuid}", func(r *http.Request, deps session.Deps, info session.Info) session.Session {
		return session.NewAppSession(deps, info, r.PathValue("app_uuid"), false)
	}},
	{"/ws/apps/{app_uuid}/preview", func(r *http.Request, deps session.Deps, info session.Info) session.Session {
		return session.NewAppSession(deps, info, r.PathValue("app_uuid"), true)
	}},
	{"/ws/store/apps/{slug}", func(r *http.Request, deps session.Deps, info session.Info) session.Session {
		return session.NewStoreSession(deps, info, r.PathValue("slug"))
	}},
	{"/ws/playground", func(r *http.Request, deps session.Deps, info session.Info) session.Session {
		return session.NewPlaygroundSession(deps, info)
	}},
	{"/ws/twilio/{app_uuid}/{incoming_number}", func(r *http.Request, deps session.Deps, info session.Info) session.Session {
		return session.NewTwilioSession(deps, info, r.PathValue("app_uuid"), r.PathValue("incoming_number"))
	}},
	{"/ws/assets/{category}/{uuid}", func(r *http.Request, deps session.Deps, info session.Info) session.Session {
		return session.NewAssetStreamSession(deps, info, r.PathValue("category"), r.PathValue("uuid"))
	}},
	{"/ws/connections/{conn_id}/activate", func(r *http.Request, deps session.Deps, info session.Info) session.Session {
		return session.NewConnectionSession(deps, info, r.PathValue("conn_id"))
	}},
}

// registerRoutes registers health and websocket routes on mux.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	authMiddleware := auth.OptionalAuthMiddleware(g.verifier, g.config.Auth.PridCookie)
	for _, route := range sessionRoutes {
		mux.Handle("GET "+route.pattern, authMiddleware(g.sessionHandler(route.build)))
	}
}

func (g *Gateway) sessionHandler(build sessionBuilder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serveSession(w, r, build(r, g.deps, session.InfoFromRequest(r)))
	})
}

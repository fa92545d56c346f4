package controllers

import (
	"net/http"

	"github.com/angelmondragon/sourcing-engine/api/middleware"
	"github.com/angelmondragon/sourcing-engine/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// WhoAmI echoes the identity the gateway attached to the request.
func WhoAmI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{
			"actor_id": middleware.ActorIDFromContext(r.Context()),
			"role":     string(middleware.RoleFromContext(r.Context())),
		})
	}
}

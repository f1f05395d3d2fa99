package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/apptengine/libs/auth"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
)

const ActorRoleHeader = "X-Actor-Role"

var errUnauthorized = errors.New("unauthorized")

// actorFrom resolves who is calling. With a secret configured only a valid
// HS256 bearer token counts; without one the role header is trusted and
// defaults to CLIENT. SYSTEM is internal and never accepted from a caller.
func (h *Handler) actorFrom(r *http.Request) (model.Actor, error) {
	if h.secret != "" {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			return "", errUnauthorized
		}
		claims, err := auth.ParseAndVerifyHS256(token, h.secret)
		if err != nil {
			return "", errUnauthorized
		}
		a := model.Actor(strings.ToUpper(claims.Role))
		if !a.Valid() || a == model.ActorSystem {
			return "", errUnauthorized
		}
		return a, nil
	}
	raw := strings.TrimSpace(r.Header.Get(ActorRoleHeader))
	if raw == "" {
		return model.ActorClient, nil
	}
	a := model.Actor(strings.ToUpper(raw))
	if !a.Valid() || a == model.ActorSystem {
		return "", errUnauthorized
	}
	return a, nil
}

package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/oakmart/ordercore/internal/domain/actor"
)

type actorCtxKey struct{}

// ActorFromContext extracts the authenticated actor from the context.
func ActorFromContext(ctx context.Context) (actor.Actor, bool) {
	a, ok := ctx.Value(actorCtxKey{}).(actor.Actor)
	return a, ok
}

// ActorAuth returns a middleware that authenticates requests via an
// HMAC-signed bearer token carrying subject and role claims, and stores the
// resulting actor in the request context. The token is only the carrier of
// the actor identity; the engines re-validate roles per operation.
func ActorAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, err := parseActorToken(r.Header.Get("Authorization"), secret)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), actorCtxKey{}, a)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseActorToken(header string, secret []byte) (actor.Actor, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return actor.Actor{}, errors.New("missing bearer token")
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return actor.Actor{}, errors.New("invalid token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return actor.Actor{}, errors.New("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)

	a := actor.Actor{ID: sub, Role: actor.Role(role)}
	if a.ID == "" || !a.Role.Valid() {
		return actor.Actor{}, errors.New("incomplete actor claims")
	}
	return a, nil
}

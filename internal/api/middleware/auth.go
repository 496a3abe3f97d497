// Package middleware implements the local API's bearer-token authorization
// (spec §6 "Authorization ... bearer token with three permission tiers").
// Grounded on dittofs's JWT auth service (internal/controlplane/api/auth):
// each configured token's secret is an HMAC signing key, and the bearer
// credential is a JWT carrying a token id claim used to pick the right key,
// generalized here from a user-login service to spec's static per-token
// config entries since the node never issues tokens itself.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tamtunnel/spacecomms/internal/config"
	"github.com/tamtunnel/spacecomms/internal/logging"
)

// Permission is one of the three tiers from spec §6.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionAdmin Permission = "admin"
)

// rank orders tiers so that admin satisfies write and read requirements,
// and write satisfies read, matching the usual reading of "three tiers"
// as nested rather than disjoint scopes.
var rank = map[Permission]int{
	PermissionRead:  1,
	PermissionWrite: 2,
	PermissionAdmin: 3,
}

// Claims is the JWT payload a bearer token must carry. TokenID selects
// which configured secret verifies the signature, the same role "kid"
// plays in header-based key selection.
type Claims struct {
	jwt.RegisteredClaims
	TokenID string `json:"tid"`
}

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or unrecognized bearer token")
)

type ctxKey string

const ctxKeyTokenID ctxKey = "spacecomms_token_id"

// Authenticator validates bearer tokens against the node's configured
// token table (spec §6 "api.auth.tokens[].{id, secret, permissions}").
type Authenticator struct {
	enabled bool
	tokens  map[string]config.APITokenConfig
	log     logging.Logger
}

// NewAuthenticator builds an Authenticator from the loaded auth config.
func NewAuthenticator(cfg config.AuthConfig, log logging.Logger) *Authenticator {
	tokens := make(map[string]config.APITokenConfig, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		tokens[t.ID] = t
	}
	return &Authenticator{enabled: cfg.Enabled, tokens: tokens, log: log}
}

// authenticate verifies the bearer credential and returns the matching
// token config entry, whose Permissions (not the client-supplied claims)
// are the authority for what the caller may do.
func (a *Authenticator) authenticate(bearer string) (*config.APITokenConfig, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(bearer, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		entry, ok := a.tokens[claims.TokenID]
		if !ok {
			return nil, fmt.Errorf("unknown token id %q", claims.TokenID)
		}
		return []byte(entry.Secret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	entry, ok := a.tokens[claims.TokenID]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &entry, nil
}

func bearerFrom(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrMissingToken
	}
	return parts[1], nil
}

func highestRank(perms []string) int {
	best := 0
	for _, p := range perms {
		if r := rank[Permission(p)]; r > best {
			best = r
		}
	}
	return best
}

// Require returns middleware enforcing that the bearer token's highest
// configured tier satisfies at least `need` (spec §6 "admin is required
// to mutate the peer table"). When auth is disabled in config, every
// request passes through unauthenticated.
func (a *Authenticator) Require(need Permission, writeError func(w http.ResponseWriter, status int, code, message, field string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.enabled {
				next.ServeHTTP(w, r)
				return
			}

			bearer, err := bearerFrom(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), "")
				return
			}

			entry, err := a.authenticate(bearer)
			if err != nil {
				a.log.Warnf("rejected bearer token: %v", err)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), "")
				return
			}

			if highestRank(entry.Permissions) < rank[need] {
				writeError(w, http.StatusForbidden, "UNAUTHORIZED", "token lacks required permission tier", "")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyTokenID, entry.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenIDFromContext returns the authenticated token's id, if any.
func TokenIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKeyTokenID).(string)
	return id, ok
}

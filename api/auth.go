/*
auth.go - Bearer token verification and current-user resolution

PURPOSE:
  Identity is delegated to an external provider that issues HS256 JWTs.
  This file verifies those tokens (jwtauth) and maps the claims onto an
  Employee through leave.Directory, creating the employee on first sight.

CLAIMS:
  sub    Identity provider subject (required, becomes Employee.ClerkID)
  email  Optional, lowercased before lookup
  name   Optional display name
  iss    Checked when JWT_ISSUER is configured

FLOW:
  jwtauth.Verifier       -> parses the Authorization header
  Handler.authenticate   -> 401 on missing/invalid token, else resolves the
                            employee and stores it in the request context
  handlers               -> actorFrom(ctx)

SEE ALSO:
  - leave/directory.go: CurrentUser, RequireAuth, RequireAdmin
  - cmd/leavectl: token subcommand mints development tokens
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// TokenAuth verifies and mints identity tokens.
type TokenAuth struct {
	ja     *jwtauth.JWTAuth
	issuer string
}

// NewTokenAuth creates an HS256 verifier. When issuer is non-empty, tokens
// must carry a matching iss claim.
func NewTokenAuth(secret, issuer string) *TokenAuth {
	opts := []jwt.ValidateOption{jwt.WithAcceptableSkew(30 * time.Second)}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &TokenAuth{
		ja:     jwtauth.New("HS256", []byte(secret), nil, opts...),
		issuer: issuer,
	}
}

// JWTAuth exposes the underlying verifier for router wiring.
func (t *TokenAuth) JWTAuth() *jwtauth.JWTAuth {
	return t.ja
}

// Issue signs a token for id that expires after ttl.
func (t *TokenAuth) Issue(id leave.Identity, ttl time.Duration) (string, error) {
	claims := map[string]interface{}{
		jwt.SubjectKey:  id.Subject,
		jwt.IssuedAtKey: time.Now().Unix(),
	}
	if ttl > 0 {
		claims[jwt.ExpirationKey] = time.Now().Add(ttl).Unix()
	}
	if t.issuer != "" {
		claims[jwt.IssuerKey] = t.issuer
	}
	if id.Email != "" {
		claims["email"] = id.Email
	}
	if id.Name != "" {
		claims["name"] = id.Name
	}
	_, token, err := t.ja.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

type ctxKey struct{}

var actorKey = ctxKey{}

// authenticate resolves the verified token into an Employee.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token, _, err := jwtauth.FromContext(ctx)
		if err != nil || token == nil {
			writeUnauthorized(w)
			return
		}

		claims, err := token.AsMap(ctx)
		if err != nil {
			writeUnauthorized(w)
			return
		}
		id := leave.Identity{
			Subject: token.Subject(),
			Email:   stringClaim(claims, "email"),
			Name:    stringClaim(claims, "name"),
		}
		if id.Subject == "" {
			writeUnauthorized(w)
			return
		}

		actor, err := h.Directory.CurrentUser(ctx, id)
		if err != nil {
			if generic.IsKind(err, generic.KindForbidden) {
				writeUnauthorized(w)
				return
			}
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, actorKey, actor)))
	})
}

// requireAdmin rejects non-admins before the handler runs. Domain
// operations check again.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := leave.RequireAdmin(actorFrom(r.Context())); err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// actorFrom returns the authenticated employee, or nil.
func actorFrom(ctx context.Context) *leave.Employee {
	actor, _ := ctx.Value(actorKey).(*leave.Employee)
	return actor
}

func stringClaim(claims map[string]interface{}, key string) string {
	s, _ := claims[key].(string)
	return s
}

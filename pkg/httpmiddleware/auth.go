package httpmiddleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Verifier turns a bearer token into the authenticated user id.
type Verifier interface {
	Verify(token string) (subject string, err error)
}

// JWTVerifier verifies HS256 tokens issued by the identity service. The user
// id is the registered "sub" claim.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier. An empty issuer disables the "iss" check.
func NewJWTVerifier(secret []byte, issuer string, leeway time.Duration) *JWTVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTVerifier{secret: secret, parser: jwt.NewParser(opts...)}
}

// Verify implements Verifier.
func (v *JWTVerifier) Verify(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return "", errors.Wrap(ErrInvalidToken, err.Error())
	}
	if claims.Subject == "" {
		return "", errors.Wrap(ErrInvalidToken, "missing subject")
	}
	return claims.Subject, nil
}

type subjectKey struct{}

// WithSubject stores an authenticated user id in ctx.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the user id stored by Authenticate.
func SubjectFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectKey{}).(string)
	return sub, ok && sub != ""
}

// Authenticate requires a valid "Authorization: Bearer" token and stores
// its subject in the request context and logger.
func Authenticate(v Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer`)
				writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized", "bearer token required")
				return
			}
			sub, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				zctx.From(r.Context()).Debug("Token rejected", zap.Error(err))
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized", "invalid bearer token")
				return
			}
			ctx := WithSubject(r.Context(), sub)
			ctx = zctx.With(ctx, zap.String("user_id", sub))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

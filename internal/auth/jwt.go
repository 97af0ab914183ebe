package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
)

var (
	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = errors.New("auth: missing bearer token")
	// ErrInvalidToken covers signature, expiry and subject failures.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Validator checks HS256 bearer tokens issued by the identity provider.
// Issuance happens elsewhere; this type only parses.
type Validator struct {
	secret   []byte
	issuer   string
	audience string
}

// Option customizes a Validator.
type Option func(*Validator)

// WithIssuer requires the iss claim to match.
func WithIssuer(iss string) Option {
	return func(v *Validator) { v.issuer = iss }
}

// WithAudience requires the aud claim to contain aud.
func WithAudience(aud string) Option {
	return func(v *Validator) { v.audience = aud }
}

// NewValidator returns a Validator for secret. An empty secret disables
// authentication: every token is rejected.
func NewValidator(secret string, opts ...Option) *Validator {
	v := &Validator{secret: []byte(secret)}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Enabled reports whether a signing secret is configured.
func (v *Validator) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Validate parses raw and returns the user named by its sub claim.
func (v *Validator) Validate(raw string) (domain.User, error) {
	if !v.Enabled() {
		return domain.User{}, fmt.Errorf("%w: no secret configured", ErrInvalidToken)
	}
	if raw == "" {
		return domain.User{}, ErrMissingToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	return domain.User{ID: id.String()}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// AccessTokenParam is the query parameter Required falls back to when the
// request has no bearer header.
const AccessTokenParam = "access_token"

// RequestToken returns the bearer token, or the access_token query parameter
// when no Authorization header is present.
func RequestToken(r *http.Request) string {
	if tok := BearerToken(r); tok != "" {
		return tok
	}
	return strings.TrimSpace(r.URL.Query().Get(AccessTokenParam))
}

type userKey struct{}

// WithUser stores user on ctx.
func WithUser(ctx context.Context, user domain.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userKey{}).(domain.User)
	return u, ok && u.ID != ""
}

// Optional attaches the bearer user to the request context when the token
// validates. Missing or invalid tokens fall through as anonymous.
func (v *Validator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, err := v.Validate(BearerToken(r)); err == nil {
			r = r.WithContext(WithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

// Required rejects requests without a valid token using onFail. The token is
// read from the bearer header, then from the access_token query parameter.
func (v *Validator) Required(onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := v.Validate(RequestToken(r))
			if err != nil {
				onFail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

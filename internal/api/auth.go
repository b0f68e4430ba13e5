package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/nu7hatch/gouuid"
	"go.uber.org/zap"
)

const (
	callerHeader    = "X-Caller"
	requestIdHeader = "X-Request-Id"
)

var (
	ErrMissingCaller = errors.New("missing caller")
	ErrInvalidToken  = errors.New("invalid token")
)

type contextKey int

const (
	callerKey contextKey = iota
	requestIdKey
)

// Authenticator resolves the identity acting on a request.
type Authenticator interface {
	Caller(r *http.Request) (string, error)
}

type headerAuthenticator struct{}

type jwtAuthenticator struct {
	secret []byte
}

// NewAuthenticator trusts the X-Caller header when secret is empty, otherwise
// the subject of an HS256 bearer token signed with secret.
func NewAuthenticator(secret string) Authenticator {
	if secret == "" {
		return headerAuthenticator{}
	}
	return jwtAuthenticator{secret: []byte(secret)}
}

func (headerAuthenticator) Caller(r *http.Request) (string, error) {
	caller := r.Header.Get(callerHeader)
	if caller == "" {
		return "", ErrMissingCaller
	}
	return entity.NormalizeAddress(caller)
}

func (a jwtAuthenticator) Caller(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrMissingCaller
	}

	token, err := jwt.Parse(
		strings.TrimPrefix(header, "Bearer "),
		func(token *jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", ErrInvalidToken
	}

	return entity.NormalizeAddress(subject)
}

func (s server) caller(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.auth.Caller(r)
		if err != nil {
			zap.L().With(zap.Error(err), zap.String("requestId", requestIdFrom(r.Context()))).Debug("Api: Unauthenticated request")
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey, caller)))
	})
}

func callerFrom(ctx context.Context) string {
	caller, _ := ctx.Value(callerKey).(string)
	return caller
}

func requestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIdHeader)
		if id == "" {
			if u, err := uuid.NewV4(); err == nil {
				id = u.String()
			}
		}
		w.Header().Set(requestIdHeader, id)

		zap.L().With(
			zap.String("requestId", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		).Debug("Api: Request")

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIdKey, id)))
	})
}

func requestIdFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIdKey).(string)
	return id
}

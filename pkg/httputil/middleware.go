package httputil

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/suyashwaghule/joitex-IVM/pkg/actor"
	"github.com/suyashwaghule/joitex-IVM/pkg/errors"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
	"github.com/suyashwaghule/joitex-IVM/pkg/messaging"
	"github.com/suyashwaghule/joitex-IVM/pkg/permissions"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
)

// RequestID middleware adds a request ID to each request. The same ID is the
// correlation ID of any event published while serving it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = messaging.WithCorrelationID(ctx, requestID)
		ctx = logger.ContextWithRequestID(ctx, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logger middleware logs HTTP requests
func Logger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			// Authenticate runs further down the chain, so the actor is
			// read back through a holder placed in the context here.
			holder := &actorHolder{}
			r = r.WithContext(context.WithValue(r.Context(), actorHolderKey{}, holder))

			next.ServeHTTP(wrapped, r)

			actorID := ""
			if holder.actor != nil {
				actorID = holder.actor.ID
			}

			log.Info().
				Str("request_id", GetRequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Str("actor_id", actorID).
				Str("remote_addr", r.RemoteAddr).
				Msg("HTTP request")
		})
	}
}

type actorHolderKey struct{}

type actorHolder struct {
	actor *actor.Actor
}

// Recoverer middleware recovers from panics
func Recoverer(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("panic", err).
						Str("path", r.URL.Path).
						Msg("panic recovered")

					Error(w, errors.Internal("internal server error"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// Authenticate validates the HS256 bearer token issued by the auth service
// and attaches the resulting actor to the request context.
func Authenticate(secret, issuer string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				Error(w, errors.Unauthorized("missing authorization header"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				Error(w, errors.Unauthorized("invalid authorization header format"))
				return
			}

			opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
			if issuer != "" {
				opts = append(opts, jwt.WithIssuer(issuer))
			}

			token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			}, opts...)
			if err != nil {
				log.Debug().Err(err).Msg("token validation failed")
				if errors.Is(err, jwt.ErrTokenExpired) {
					Error(w, errors.TokenExpired())
				} else {
					Error(w, errors.TokenInvalid())
				}
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				Error(w, errors.TokenInvalid())
				return
			}

			a := actorFromClaims(claims)
			if a.ID == "" {
				Error(w, errors.TokenInvalid())
				return
			}

			if holder, ok := r.Context().Value(actorHolderKey{}).(*actorHolder); ok {
				holder.actor = a
			}

			ctx := actor.WithActor(r.Context(), a)
			ctx = logger.ContextWithActor(ctx, a.ID, a.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFromClaims(claims jwt.MapClaims) *actor.Actor {
	a := &actor.Actor{}
	a.ID, _ = claims["sub"].(string)
	if a.ID == "" {
		a.ID, _ = claims["user_id"].(string)
	}
	a.Name, _ = claims["name"].(string)
	a.Email, _ = claims["email"].(string)
	a.Role, _ = claims["role"].(string)

	if perms, ok := claims["permissions"].([]interface{}); ok {
		for _, p := range perms {
			if s, ok := p.(string); ok {
				a.Permissions = append(a.Permissions, s)
			}
		}
	}
	return a
}

// RequirePermission rejects requests whose actor lacks perm, either through
// its role or an explicit grant in the token.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := actor.FromContext(r.Context())
			if a == nil {
				Error(w, errors.Unauthorized("authentication required"))
				return
			}

			granted := permissions.MergePermissions(permissions.ForRole(a.Role), a.Permissions)
			if !permissions.HasPermission(granted, perm) {
				Error(w, errors.Forbidden("missing permission "+perm))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

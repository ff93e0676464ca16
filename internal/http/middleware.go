package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/identity"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/logger"
)

type ownerContextKey struct{}

// OwnerResolver is the slice of identity.Resolver the transport needs.
type OwnerResolver interface {
	Resolve(ctx context.Context, creds identity.Credentials) (identity.Resolution, error)
	Account(bearer string) (domain.Owner, error)
}

// SessionTransport describes how the anonymous token travels between
// client and server.
type SessionTransport struct {
	HeaderName   string
	CookieName   string
	CookieSecure bool
	TTL          time.Duration
}

func (s SessionTransport) token(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(s.HeaderName)); v != "" {
		return v
	}
	if c, err := r.Cookie(s.CookieName); err == nil {
		return c.Value
	}
	return ""
}

func (s SessionTransport) issue(w http.ResponseWriter, token string) {
	w.Header().Set(s.HeaderName, token)
	http.SetCookie(w, &http.Cookie{
		Name:     s.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.TTL.Seconds()),
		HttpOnly: true,
		Secure:   s.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s SessionTransport) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// IdentityMiddleware resolves the owner of every request and stores it in the
// request context. A newly issued anonymous token is sent back as both a
// header and a cookie.
func IdentityMiddleware(resolver OwnerResolver, transport SessionTransport, base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := resolver.Resolve(r.Context(), identity.Credentials{
				BearerToken:    bearerToken(r),
				AnonymousToken: transport.token(r),
			})
			if err != nil {
				handleError(w, r, base, err)
				return
			}
			if res.IssuedToken != "" {
				transport.issue(w, res.IssuedToken)
			}
			ctx := context.WithValue(r.Context(), ownerContextKey{}, res.Owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ownerFromContext(ctx context.Context) (domain.Owner, bool) {
	owner, ok := ctx.Value(ownerContextKey{}).(domain.Owner)
	return owner, ok && !owner.IsZero()
}

// RequestLogger attaches a request-scoped zap logger and logs one line per
// request once it completes.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, l := logger.WithRequestID(r.Context(), base, middleware.GetReqID(r.Context()))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			l.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// MaxBodySize caps request bodies; oversized bodies fail JSON decoding.
func MaxBodySize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"dashguard/internal/config"
	"dashguard/internal/domain/models"
	"dashguard/pkg/logger"
)

// ErrInvalidSession is returned for a missing or malformed session blob
var ErrInvalidSession = errors.New("invalid session")

// ContextKey is a type for context keys
type ContextKey string

const (
	// ContextKeySession is the context key for the parsed session
	ContextKeySession ContextKey = "session"
)

var validate = validator.New()

// ParseSession decodes a session blob. The blob is JSON, optionally base64
// or URL encoded. It is valid when it parses, carries a token and a user id,
// and the e-mail is a well-formed address.
func ParseSession(raw string) (models.Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.Session{}, fmt.Errorf("%w: empty", ErrInvalidSession)
	}

	data := []byte(raw)
	if !strings.HasPrefix(raw, "{") {
		if unescaped, err := url.QueryUnescape(raw); err == nil && strings.HasPrefix(unescaped, "{") {
			data = []byte(unescaped)
		} else if decoded, err := decodeBase64(raw); err == nil {
			data = decoded
		} else {
			return models.Session{}, fmt.Errorf("%w: not JSON or base64", ErrInvalidSession)
		}
	}

	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return models.Session{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	s.Token = strings.TrimSpace(s.Token)
	if err := validate.Struct(s); err != nil {
		return models.Session{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return s, nil
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("not base64")
}

// SessionGate returns middleware that admits requests carrying a valid session
// blob in the configured header or cookie
func SessionGate(cfg config.SessionConfig, log *logger.Logger) func(next http.Handler) http.Handler {
	log = log.WithComponent("session")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip for OPTIONS requests (CORS preflight)
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			raw := r.Header.Get(cfg.Header)
			if raw == "" && cfg.Cookie != "" {
				if c, err := r.Cookie(cfg.Cookie); err == nil {
					raw = c.Value
				}
			}
			if raw == "" {
				http.Error(w, `{"error":"missing session"}`, http.StatusUnauthorized)
				return
			}

			session, err := ParseSession(raw)
			if err != nil {
				log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("rejected session")
				http.Error(w, `{"error":"invalid session"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySession, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSession returns the session from context
func GetSession(ctx context.Context) (models.Session, bool) {
	s, ok := ctx.Value(ContextKeySession).(models.Session)
	return s, ok
}

// WithSession returns a copy of ctx carrying s
func WithSession(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, ContextKeySession, s)
}

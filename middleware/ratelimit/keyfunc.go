package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/cespare/xxhash/v2"
)

// maxKeyLen bounds derived keys; longer ones are replaced by their hash.
const maxKeyLen = 128

type KeyFunc func(r *http.Request) string

// IdentityFunc reports the authenticated user of a request, if any.
type IdentityFunc func(r *http.Request) (userID string, ok bool)

// KeyOptions selects how the caller key of a request is derived.
//
// Precedence: KeyFn, then the KeyHeader value, then the client address.
// IncludeUserID appends ":<userID>" to the header or address key when
// Identity reports a user.
type KeyOptions struct {
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	IncludeUserID      bool
	// Identity defaults to UserIDFromContext on the request context.
	Identity IdentityFunc
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}
		return clientAddress(r, trustXFF)
	}
}

func clientAddress(r *http.Request, trustXFF bool) string {
	if trustXFF {
		// first entry is the original client
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// DeriveKey computes the caller key of r. A custom KeyFn that panics or
// returns an empty key yields domain.ErrInvalidKeyDerivation.
func DeriveKey(r *http.Request, o KeyOptions) (domain.Key, error) {
	if o.KeyFn != nil {
		k, err := callKeyFn(o.KeyFn, r)
		if err != nil {
			return "", err
		}
		return boundKey(k), nil
	}

	k := DefaultKeyFunc(o.KeyHeader, o.TrustXForwardedFor)(r)
	if o.IncludeUserID {
		identity := o.Identity
		if identity == nil {
			identity = contextIdentity
		}
		if uid, ok := identity(r); ok && uid != "" {
			k += ":" + uid
		}
	}
	return boundKey(k), nil
}

func callKeyFn(fn KeyFunc, r *http.Request) (k string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: key function panicked: %v", domain.ErrInvalidKeyDerivation, rec)
		}
	}()
	k = strings.TrimSpace(fn(r))
	if k == "" {
		return "", fmt.Errorf("%w: key function returned an empty key", domain.ErrInvalidKeyDerivation)
	}
	return k, nil
}

func boundKey(k string) domain.Key {
	if len(k) <= maxKeyLen {
		return domain.Key(k)
	}
	return domain.Key("h:" + strconv.FormatUint(xxhash.Sum64String(k), 16))
}

type userIDKey struct{}

// WithUserID returns a copy of ctx carrying the authenticated user id. An
// authentication middleware upstream of the Guard sets it.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

func contextIdentity(r *http.Request) (string, bool) {
	return UserIDFromContext(r.Context())
}

// HeaderIdentity reads the user id from a header set by a trusted upstream.
func HeaderIdentity(name string) IdentityFunc {
	return func(r *http.Request) (string, bool) {
		v := strings.TrimSpace(r.Header.Get(name))
		return v, v != ""
	}
}

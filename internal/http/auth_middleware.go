package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/nmiculinic/rzne/internal/domain"
	"github.com/nmiculinic/rzne/internal/service/auth"
)

type authContextKey string

type authInfo struct {
	UserID int64
	Name   string
}

func (a authInfo) identity() domain.Identity {
	return domain.Identity{UserID: a.UserID, Name: a.Name}
}

const contextKeyAuth authContextKey = "notes-auth-info"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request carries valid Basic credentials before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the Authorization header and enriches the context.
// On failure it has already written a 401 challenge.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, authInfo, bool) {
	username, password, ok := req.BasicAuth()
	if !ok {
		r.logger.Warn("authorization header missing or malformed", "path", req.URL.Path)
		r.challenge(w, "authentication required")
		return req.Context(), authInfo{}, false
	}
	identity, err := r.auth.Authenticate(req.Context(), username, password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			r.challenge(w, "authentication failed")
		} else {
			r.logger.Error("credential lookup failed", "error", err, "path", req.URL.Path)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return req.Context(), authInfo{}, false
	}
	info := authInfo{UserID: identity.UserID, Name: identity.Name}
	ctx := context.WithValue(req.Context(), contextKeyAuth, info)
	if setter, ok := w.(contextSetter); ok {
		setter.SetContext(ctx)
	}
	return ctx, info, true
}

// challenge answers 401 with a Basic challenge for the configured realm.
func (r *Router) challenge(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", "Basic realm="+strconv.Quote(r.opts.Realm)+", charset=\"UTF-8\"")
	writeError(w, http.StatusUnauthorized, msg)
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

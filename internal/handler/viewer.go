package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ViewerCookieName identifies a browser across requests. Each viewer gets its
// own attendance and fee grids.
const ViewerCookieName = "ondo_viewer"

const viewerCookieMaxAge = 365 * 24 * time.Hour

type viewerKey struct{}

// Viewers assigns a viewer id cookie to browsers that lack a valid one.
func Viewers(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(ViewerCookieName); err == nil {
				if u, err := uuid.Parse(c.Value); err == nil {
					id = u.String()
				}
			}
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     ViewerCookieName,
					Value:    id,
					Path:     "/",
					MaxAge:   int(viewerCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), viewerKey{}, id)))
		})
	}
}

// ViewerID returns the id assigned by Viewers, or "" outside it.
func ViewerID(r *http.Request) string {
	id, _ := r.Context().Value(viewerKey{}).(string)
	return id
}

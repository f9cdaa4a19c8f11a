package http

import (
	"io/fs"
	"net/http"
	"path"
)

type tokenValidator interface {
	Validate(token string) error
}

// Pages that need a signed-in user. Everything else in the bundle is public
// so the login page can load its script and styles.
var appPages = map[string]bool{
	"/":           true,
	"/index.html": true,
}

// NewFileServerHandler serves the embedded UI bundle. Visitors without a
// valid token cookie are sent to /login.html instead of the chat page.
func NewFileServerHandler(tokens tokenValidator, assets fs.FS) http.HandlerFunc {
	files := http.FileServer(http.FS(assets))

	signedIn := func(r *http.Request) bool {
		cookie, err := r.Cookie("token")
		return err == nil && cookie.Value != "" && tokens.Validate(cookie.Value) == nil
	}

	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case path.Ext(r.URL.Path) == ".go":
			// the embed package lives next to the assets
			http.NotFound(w, r)
			return
		case appPages[r.URL.Path] && !signedIn(r):
			http.Redirect(w, r, "/login.html", http.StatusFound)
			return
		case r.URL.Path == "/sw.js":
			w.Header().Set("Cache-Control", "no-cache")
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.ServeHTTP(w, r)
	}
}

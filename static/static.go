// Package static holds the browser UI served by the API server.
package static

import "embed"

//go:embed *.html *.css *.js
var Content embed.FS

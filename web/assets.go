// Package web contains embedded web UI template assets for the gateway's
// built-in operator dashboard (served by cmd/luxgw-admin).
package web

import "embed"

// Assets contains embedded web UI assets for the built-in dashboard.
//
//go:embed *.html *.png
var Assets embed.FS

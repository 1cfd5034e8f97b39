// Package site serves the embedded search page.
package site

import (
	"context"
	"net/http"
)

// Register attaches the search page and its assets to mux.
//
//	GET /          -> index.html
//	GET /assets/*  -> scripts and styles
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	files := http.FileServer(FS())
	mux.Handle("GET /{$}", files)
	mux.Handle("GET /assets/", files)
}

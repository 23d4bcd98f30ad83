package microfeed

import (
	"embed"
	"io/fs"
)

// EmbeddedAssets contains the static assets served under /assets/:
// style.css and live.js.
//
//go:embed embedded/*
var EmbeddedAssets embed.FS

func assetsFS() fs.FS {
	sub, err := fs.Sub(EmbeddedAssets, "embedded")
	if err != nil {
		panic(err)
	}
	return sub
}

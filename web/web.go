package web

import "embed"

//go:embed *.html
var FS embed.FS

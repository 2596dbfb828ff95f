// Package acadvault provides embedded page templates and static assets.
package acadvault

import "embed"

//go:embed all:web/templates
var TemplateFS embed.FS

//go:embed all:web/static
var StaticFS embed.FS

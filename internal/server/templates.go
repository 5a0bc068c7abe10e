package server

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// alipayBridgeData feeds the bridge page that requests an auth code from the
// Alipay app shell and posts it back
type alipayBridgeData struct {
	ReturnTo     string
	CallbackPath string
}

// maintenanceData feeds the maintenance page
type maintenanceData struct {
	Title   string
	Detail  string
	Missing string
}

// shellData feeds the app shell served for page routes
type shellData struct {
	Title string
	Page  string
}

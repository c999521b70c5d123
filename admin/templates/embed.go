package templates

import "embed"

// TemplateFS holds the admin HTML templates so single-binary and
// serverless deployments don't depend on the working directory.
//
//go:embed *.html
var TemplateFS embed.FS

// Package docs holds the OpenAPI documentation generated from the handler
// annotations in internal/server/endpoints.
//
// Relayout API
//
//	@title			Relayout API
//	@version		1.0
//	@description	Reconciles detected page layout regions with PDF text geometry.
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http
package docs

//go:generate swag init -g ../cmd/relayout/serve.go -o ./swagger --parseDependency --parseInternal

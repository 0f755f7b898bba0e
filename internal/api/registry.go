package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Registry holds all registered endpoints.
type Registry struct {
	endpoints []Endpoint
}

// NewRegistry creates a new endpoint registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an endpoint to the registry.
func (r *Registry) Register(ep Endpoint) {
	r.endpoints = append(r.endpoints, ep)
}

// RegisterRoutes registers all endpoint HTTP routes with the given mux.
// initMiddleware wraps handlers that require full server initialization.
func (r *Registry) RegisterRoutes(mux *http.ServeMux, initMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	for _, ep := range r.endpoints {
		method, path, handler := ep.Route()
		if ep.RequiresInit() {
			handler = initMiddleware(handler)
		}
		mux.HandleFunc(method+" "+path, handler)
	}
}

// BuildCommands returns a cobra.Command tree for all registered endpoints.
// Commands are organized by their URL path structure.
// getServerURL is called at runtime to get the server URL.
func (r *Registry) BuildCommands(getServerURL func() string) *cobra.Command {
	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Commands that call the running server",
		Long: `API commands call the running relayout server via HTTP.

These commands require a running server (relayout serve).
Use --server to specify a custom server URL.

Examples:
  relayout api health                        # Check server health
  relayout api documents upload paper.pdf    # Ingest a PDF
  relayout api detect <doc-id> 1 page.png    # Detect layout on page 1
  relayout api compare <doc-id> 1            # Split text inside/outside regions
  relayout api reclassify <doc-id> 1         # Reconcile regions with text`,
	}

	// Endpoints sharing a first command word ("documents upload",
	// "documents get") are grouped under one parent command.
	groups := make(map[string]*cobra.Command)
	for _, ep := range r.endpoints {
		cmd := ep.Command(getServerURL)
		group, ok := ep.(Grouped)
		if !ok {
			apiCmd.AddCommand(cmd)
			continue
		}
		name := group.Group()
		parent, exists := groups[name]
		if !exists {
			parent = &cobra.Command{Use: name, Short: "Commands for " + name}
			groups[name] = parent
			apiCmd.AddCommand(parent)
		}
		parent.AddCommand(cmd)
	}

	return apiCmd
}

// Grouped is implemented by endpoints whose command lives under a parent
// command, e.g. "documents".
type Grouped interface {
	Group() string
}

// Endpoints returns all registered endpoints.
func (r *Registry) Endpoints() []Endpoint {
	return r.endpoints
}

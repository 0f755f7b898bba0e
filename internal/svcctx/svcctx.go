// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/relayout/internal/home"
	"github.com/jackzampolin/relayout/internal/layoutsvc"
	"github.com/jackzampolin/relayout/internal/pagestore"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Layout      *layoutsvc.Service
	Store       pagestore.Store
	StoreDriver string
	Home        *home.Dir
	Logger      *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// LayoutFrom extracts the layout service from context.
func LayoutFrom(ctx context.Context) *layoutsvc.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.Layout
	}
	return nil
}

// StoreFrom extracts the page store from context.
func StoreFrom(ctx context.Context) pagestore.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// LoggerFrom extracts the logger from context, falling back to the default.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// Package handlers implements the HTTP handlers of the registry API.
package handlers

import (
	"github.com/maruel/modelprov/internal/inference"
	"github.com/maruel/modelprov/internal/storage"
)

// Services bundles the components handlers operate on.
type Services struct {
	Registry   *storage.Registry
	Dispatcher *inference.Dispatcher
}

// Config holds the server settings handlers need.
type Config struct {
	storage.ServerConfig
	Version string
}

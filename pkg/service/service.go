// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

// Package service holds the capabilities agents act through that are not
// conversations with the user: files, HTTP, email and anything plugged in
// as a module.Module of kind service.
package service

import (
	"github.com/jllopis/onyx/pkg/module"
)

// Manager owns the registered services.
type Manager struct {
	*module.Registry[module.Module]
}

// NewManager returns an empty service manager.
func NewManager() *Manager {
	return &Manager{Registry: module.NewRegistry[module.Module]()}
}

// RegisterAll registers every service, stopping at the first error.
func (m *Manager) RegisterAll(services ...module.Module) error {
	for _, s := range services {
		if err := m.Register(s); err != nil {
			return err
		}
	}
	return nil
}

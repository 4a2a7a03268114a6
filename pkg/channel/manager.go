// Copyright 2026 © The Onyx Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"github.com/jllopis/onyx/pkg/module"
)

// Manager owns the registered channels.
type Manager struct {
	*module.Registry[Channel]
}

// NewManager returns an empty channel manager.
func NewManager() *Manager {
	return &Manager{Registry: module.NewRegistry[Channel]()}
}

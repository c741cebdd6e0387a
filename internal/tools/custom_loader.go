package tools

import (
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/localcoder/internal/config"
)

// CustomToolLoader registers config-defined command tools and keeps track
// of them so a config reload can replace the set.
type CustomToolLoader struct {
	workspace string
	mu        sync.Mutex
	names     map[string]bool
}

func NewCustomToolLoader(workspace string) *CustomToolLoader {
	return &CustomToolLoader{
		workspace: workspace,
		names:     make(map[string]bool),
	}
}

// Load registers defs into reg and returns how many were added. Definitions
// whose names collide with an existing tool are skipped.
func (l *CustomToolLoader) Load(reg *Registry, defs []config.CustomToolConfig) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	registered := 0
	for _, def := range defs {
		if def.Name == "" || def.Command == "" {
			slog.Warn("custom_tools: skipping incomplete definition", "tool", def.Name)
			continue
		}
		if !reg.RegisterIfAbsent(NewCustomTool(def, l.workspace)) {
			slog.Warn("custom_tools: skipping tool (name collision with built-in/MCP)", "tool", def.Name)
			continue
		}
		l.names[def.Name] = true
		registered++
	}
	if registered > 0 {
		slog.Debug("custom_tools: loaded", "count", registered)
	}
	return registered
}

// Reload unregisters previously loaded custom tools and loads defs.
func (l *CustomToolLoader) Reload(reg *Registry, defs []config.CustomToolConfig) int {
	l.mu.Lock()
	for name := range l.names {
		reg.Unregister(name)
	}
	l.names = make(map[string]bool)
	l.mu.Unlock()

	return l.Load(reg, defs)
}

package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Terminal    bool   `json:"terminal,omitempty"`
}

// Registry is a per-agent tool table. Each loop owns its own instance;
// registries are never shared across agents through package state.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	terminal map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		terminal: make(map[string]bool),
	}
}

func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tools: nil tool")
	}
	name := strings.TrimSpace(tool.Name())
	if name == "" {
		return fmt.Errorf("tools: tool name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tools: %q already registered", name)
	}
	r.tools[name] = tool
	return nil
}

func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Catalog() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.tools))
	for name, t := range r.tools {
		out = append(out, Info{
			Name:        name,
			Description: t.Description(),
			Terminal:    r.terminal[name],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MarkTerminal flags tools whose execution ends the agent's turn (the
// designated terminal tools of the loop's termination condition).
func (r *Registry) MarkTerminal(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		r.terminal[n] = true
	}
}

func (r *Registry) IsTerminal(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.terminal[name]
}

// Descriptions renders the catalog as a prompt block, one tool per line.
func (r *Registry) Descriptions() string {
	var b strings.Builder
	for _, info := range r.Catalog() {
		b.WriteString(info.Name)
		if info.Description != "" {
			b.WriteString(": ")
			b.WriteString(info.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Wrap replaces every registered tool with wrap(tool). Used to instrument a
// whole registry in one pass.
func (r *Registry) Wrap(wrap func(Tool) Tool) {
	if wrap == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, t := range r.tools {
		if wrapped := wrap(t); wrapped != nil {
			r.tools[name] = wrapped
		}
	}
}

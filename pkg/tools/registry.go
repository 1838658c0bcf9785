// Package tools implements the agent-invokable tools and their registry.
// Validation failures are returned as textual ERROR results so the engine
// can recover conversationally; they are never protocol errors.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/leadvoice/leadvoice/pkg/session"
)

// Definition describes a tool to the conversational engine. Parameters is a
// JSON schema object.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Outcome is what a tool execution hands back to the engine.
type Outcome struct {
	Result string
	// IsError marks a textual validation failure (the ERROR: results).
	IsError bool
	// HandoffTo names the agent the conversation should transfer to, when
	// the tool triggers a handoff.
	HandoffTo string
	// Media holds references to attach to the current response.
	Media []string
}

func errorOutcome(format string, args ...any) Outcome {
	return Outcome{Result: fmt.Sprintf(format, args...), IsError: true}
}

// Executor is one tool.
type Executor interface {
	Name() string
	Definition() Definition
	Execute(ctx context.Context, sess *session.Session, input map[string]any) Outcome
}

// Registry holds the closed tool set.
type Registry struct {
	byName map[string]Executor
}

func NewRegistry(executors ...Executor) *Registry {
	r := &Registry{byName: make(map[string]Executor, len(executors))}
	for _, ex := range executors {
		if ex == nil {
			continue
		}
		r.byName[ex.Name()] = ex
	}
	return r
}

func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[strings.TrimSpace(name)]
	return ok
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the definitions for the named tools, preserving order.
// Unknown names are skipped.
func (r *Registry) Definitions(names []string) []Definition {
	if r == nil {
		return nil
	}
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		if ex, ok := r.byName[name]; ok {
			defs = append(defs, ex.Definition())
		}
	}
	return defs
}

// Execute runs the named tool against the session. An unknown tool is an
// error outcome, not a failure: the engine relays it and the turn continues.
func (r *Registry) Execute(ctx context.Context, name string, sess *session.Session, input map[string]any) Outcome {
	if r == nil {
		return errorOutcome("ERROR: no tools are configured.")
	}
	ex, ok := r.byName[strings.TrimSpace(name)]
	if !ok {
		return errorOutcome("ERROR: unknown tool %q.", name)
	}
	return ex.Execute(ctx, sess, input)
}

func stringArg(input map[string]any, key string) string {
	v, _ := input[key].(string)
	return strings.TrimSpace(v)
}

func stringSchema(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func objectSchema(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

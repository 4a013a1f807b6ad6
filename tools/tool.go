// Package tools holds the invocable capability surface: the Tool interface,
// an app-scoped registry, schema validation, and the instrumentation wrapper
// that turns executions into completed actions for the notification router.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chronosim/chronosim/types"
)

// Separator joins an app name and a function name into the registry key,
// e.g. "user_interface__send_message_to_user".
const Separator = types.AppSeparator

type Tool interface {
	// Name is the fully qualified App__function form.
	Name() string
	Description() string
	// Schema describes the object-form arguments as a JSON schema; nil means
	// the tool takes no (or free-form) arguments and skips validation.
	Schema() map[string]any
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// SplitName splits a fully qualified name into app and bare function name.
// Names without a separator come back with an empty app.
func SplitName(full string) (app, fn string) {
	if i := strings.Index(full, Separator); i >= 0 {
		return full[:i], full[i+len(Separator):]
	}
	return "", full
}

// JoinName is the inverse of SplitName.
func JoinName(app, fn string) string {
	if app == "" {
		return fn
	}
	return app + Separator + fn
}

type funcTool struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, args json.RawMessage) (any, error)
}

// Func builds a Tool from a function.
func Func(name, description string, schema map[string]any, fn func(ctx context.Context, args json.RawMessage) (any, error)) Tool {
	return &funcTool{name: name, description: description, schema: schema, fn: fn}
}

func (t *funcTool) Name() string           { return t.name }
func (t *funcTool) Description() string    { return t.description }
func (t *funcTool) Schema() map[string]any { return t.schema }

func (t *funcTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	if t.fn == nil {
		return nil, fmt.Errorf("tool %q has no execute function", t.name)
	}
	return t.fn(ctx, args)
}

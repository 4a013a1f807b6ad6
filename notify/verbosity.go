package notify

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Level selects how chatty the environment is. LOW promotes nothing, so the
// agent only ever hears user messages and timeouts.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelLow, "":
		return LevelLow, nil
	case LevelMedium:
		return LevelMedium, nil
	case LevelHigh:
		return LevelHigh, nil
	default:
		return LevelLow, fmt.Errorf("notify: unknown verbosity level %q", s)
	}
}

// Policy maps app names to the function names whose completed actions are
// promoted to environment notifications. "*" matches every function of an
// app.
type Policy map[string][]string

func (p Policy) Allows(app, fn string) bool {
	fns, ok := p[app]
	if !ok {
		return false
	}
	for _, f := range fns {
		if f == "*" || f == fn {
			return true
		}
	}
	return false
}

// mediumPolicy covers messaging surfaces: things another party did that the
// agent would plausibly be interrupted for.
var mediumPolicy = Policy{
	"email":    {"send_email", "reply_to_email", "forward_email"},
	"chat":     {"send_message", "reply_to_message"},
	"phone":    {"receive_call", "receive_text"},
	"reminder": {"fire_reminder"},
	"calendar": {"invite_received"},
}

// highPolicy adds content and state mutations on top of the messaging
// surfaces.
var highPolicy = Policy{
	"email":    {"*"},
	"chat":     {"*"},
	"phone":    {"*"},
	"reminder": {"*"},
	"calendar": {"*"},
	"shopping": {"order_shipped", "order_delivered", "price_changed"},
	"music":    {"playback_finished"},
	"health":   {"record_updated"},
	"system":   {"app_installed", "app_updated"},
}

// PolicyFor expands a verbosity level into its static allow-list.
func PolicyFor(level Level) Policy {
	switch level {
	case LevelMedium:
		return clonePolicy(mediumPolicy)
	case LevelHigh:
		merged := clonePolicy(mediumPolicy)
		for app, fns := range highPolicy {
			merged[app] = append([]string(nil), fns...)
		}
		return merged
	default:
		return Policy{}
	}
}

// LoadPolicyFile reads an app -> [functions] allow-list from YAML.
func LoadPolicyFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("notify: read policy file: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("notify: decode policy file %q: %w", path, err)
	}
	for app, fns := range p {
		cleaned := make([]string, 0, len(fns))
		for _, f := range fns {
			f = strings.TrimSpace(f)
			if f != "" {
				cleaned = append(cleaned, f)
			}
		}
		p[app] = cleaned
	}
	return p, nil
}

func clonePolicy(p Policy) Policy {
	out := make(Policy, len(p))
	for app, fns := range p {
		out[app] = append([]string(nil), fns...)
	}
	return out
}

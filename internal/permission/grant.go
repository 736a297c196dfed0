package permission

import (
	"errors"
	"fmt"
	"strings"
)

// Action is a verb from a module's vocabulary
type Action string

// Common action vocabularies. A module declares its own vocabulary in the catalogue;
// these constants only name the actions the console refers to directly.
const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionDelete  Action = "delete"
	ActionUpdate  Action = "update"
	ActionView    Action = "view"
	ActionEdit    Action = "edit"
	ActionCreate  Action = "create"
	ActionPublish Action = "publish"
)

var (
	ErrDuplicateModule = errors.New("duplicate module grant")
	ErrUnknownAction   = errors.New("action not in module vocabulary")
	ErrUnknownModule   = errors.New("module not in catalogue")
)

// Grant is the set of actions a role or session may perform on one module
type Grant struct {
	ModuleKey string   `json:"module_key"`
	Actions   []Action `json:"actions"`
}

// Has reports whether the grant lists the action
func (g Grant) Has(action Action) bool {
	for _, a := range g.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// GrantSet indexes grants by module key for constant time lookups.
// The zero value denies everything.
type GrantSet struct {
	modules map[string]map[Action]struct{}
}

// NewGrantSet builds an index from a grant list. Repeated module keys are unioned,
// which only happens with malformed input; ValidateGrants rejects it on the write path.
func NewGrantSet(grants []Grant) GrantSet {
	modules := make(map[string]map[Action]struct{}, len(grants))
	for _, g := range grants {
		key := g.ModuleKey
		if key == "" {
			continue
		}
		actions, ok := modules[key]
		if !ok {
			actions = make(map[Action]struct{}, len(g.Actions))
			modules[key] = actions
		}
		for _, a := range g.Actions {
			actions[a] = struct{}{}
		}
	}
	return GrantSet{modules: modules}
}

// CanPerform reports whether action is granted on moduleKey. Keys match exactly.
// A module with no grant denies every action, including ones outside its vocabulary.
func (s GrantSet) CanPerform(moduleKey string, action Action) bool {
	actions, ok := s.modules[moduleKey]
	if !ok {
		return false
	}
	_, ok = actions[action]
	return ok
}

// Len returns the number of modules with at least one grant entry
func (s GrantSet) Len() int {
	return len(s.modules)
}

// Evaluator decides allow/deny for a module action
type Evaluator interface {
	CanPerform(moduleKey string, action Action) bool
}

var _ Evaluator = GrantSet{}

// ValidateGrants checks grant uniqueness and that every action belongs to the module's
// declared vocabulary in the catalogue. Inactive catalogue entries are not grantable.
func ValidateGrants(grants []Grant, catalogue []CatalogueEntry) error {
	vocab := Vocabularies(catalogue)
	seen := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		key := g.ModuleKey
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateModule, key)
		}
		seen[key] = struct{}{}

		actions, ok := vocab[key]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownModule, key)
		}
		for _, a := range g.Actions {
			if _, ok := actions[a]; !ok {
				return fmt.Errorf("%w: %s:%s", ErrUnknownAction, key, a)
			}
		}
	}
	return nil
}

// CloneGrants returns a deep copy so callers cannot alias cached slices
func CloneGrants(grants []Grant) []Grant {
	if grants == nil {
		return nil
	}
	out := make([]Grant, len(grants))
	for i, g := range grants {
		out[i] = Grant{ModuleKey: g.ModuleKey, Actions: append([]Action(nil), g.Actions...)}
	}
	return out
}

// Code renders a module action as the "module:action" privilege code
func Code(moduleKey string, action Action) string {
	return moduleKey + ":" + string(action)
}

// ParseCode splits a "module:action" privilege code
func ParseCode(code string) (string, Action, bool) {
	module, action, ok := strings.Cut(code, ":")
	if !ok || module == "" || action == "" {
		return "", "", false
	}
	return module, Action(action), true
}

// Package tools provides the tool registry and role-based access control.
//
// The registry is an immutable value built once at startup and passed into
// the session controller. Every tool name the model emits is resolved here
// exactly once into a typed call kind (read, write, delegate); later stages
// never re-interpret raw strings. Unknown tool names fail closed.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/grandcafe/concierge/pkg/models"
)

// Kind classifies how a tool call is dispatched.
type Kind string

const (
	// KindRead tools only query data and execute immediately.
	KindRead Kind = "read"

	// KindWrite tools mutate persistent state and always pass through the
	// confirmation gate, regardless of caller.
	KindWrite Kind = "write"

	// KindDelegate tools hand the turn to a sub-agent. They never reach
	// the write-tool validator.
	KindDelegate Kind = "delegate"
)

// Sentinel errors for tool resolution. Both are recoverable per-call
// conditions reported back to the model as failed tool results.
var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrForbidden   = errors.New("tool not permitted for role")
)

// Descriptor is a static registry entry for one tool. Immutable at runtime.
type Descriptor struct {
	Name        string
	Kind        Kind
	Description string

	// InputSchema is the JSON Schema advertised to the model.
	InputSchema json.RawMessage

	// AllowedRoles is the set of roles permitted to invoke the tool.
	AllowedRoles map[models.Role]struct{}
}

// AllowedFor reports whether the descriptor permits the given role.
func (d Descriptor) AllowedFor(role models.Role) bool {
	_, ok := d.AllowedRoles[role]
	return ok
}

// Registry maps tool names to descriptors. It is immutable after
// construction so tests can substitute registries without shared state.
type Registry struct {
	byName map[string]Descriptor
}

// NewRegistry builds a registry from descriptors. Duplicate names and
// descriptors with an empty name or unknown kind are rejected.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	byName := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, errors.New("tools: descriptor with empty name")
		}
		switch d.Kind {
		case KindRead, KindWrite, KindDelegate:
		default:
			return nil, fmt.Errorf("tools: %s: unknown kind %q", d.Name, d.Kind)
		}
		if _, dup := byName[d.Name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %q", d.Name)
		}
		byName[d.Name] = d
	}
	return &Registry{byName: byName}, nil
}

// Lookup returns the descriptor for a tool name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// IsAllowed reports whether the named tool exists and is permitted for the
// role. Unknown tools are not allowed.
func (r *Registry) IsAllowed(name string, role models.Role) bool {
	d, ok := r.byName[name]
	return ok && d.AllowedFor(role)
}

// Resolve checks a requested tool against the registry and the role,
// returning the typed descriptor. Errors wrap ErrUnknownTool or
// ErrForbidden so callers can classify without string matching.
func (r *Registry) Resolve(name string, role models.Role) (Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if !d.AllowedFor(role) {
		return Descriptor{}, fmt.Errorf("%w: %s (role %s)", ErrForbidden, name, role)
	}
	return d, nil
}

// ToolsFor returns the descriptors the role may use, sorted by name so the
// advertised tool list is deterministic across requests.
func (r *Registry) ToolsFor(role models.Role) []Descriptor {
	out := make([]Descriptor, 0, len(r.byName))
	for _, d := range r.byName {
		if d.AllowedFor(role) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.byName)
}

// roleSet builds an allowed-roles set from a role list.
func roleSet(roles ...models.Role) map[models.Role]struct{} {
	set := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

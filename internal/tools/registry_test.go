package tools

import (
	"errors"
	"testing"

	"github.com/grandcafe/concierge/pkg/models"
)

var allRoles = []models.Role{
	models.RoleAdmin, models.RoleOwner, models.RoleManager,
	models.RoleKitchen, models.RoleBar, models.RoleWaiter, models.RoleDJ,
}

func TestToolsFor_NeverLeaksDisallowedTools(t *testing.T) {
	reg := DefaultRegistry()
	for _, role := range allRoles {
		for _, d := range reg.ToolsFor(role) {
			if !d.AllowedFor(role) {
				t.Errorf("ToolsFor(%s) returned %s which excludes that role", role, d.Name)
			}
		}
	}
}

func TestToolsFor_Deterministic(t *testing.T) {
	reg := DefaultRegistry()
	first := reg.ToolsFor(models.RoleManager)
	second := reg.ToolsFor(models.RoleManager)
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Name != second[i].Name {
			t.Fatalf("order differs at %d: %s vs %s", i, first[i].Name, second[i].Name)
		}
	}
}

func TestResolve(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		name     string
		tool     string
		role     models.Role
		wantErr  error
		wantKind Kind
	}{
		{"waiter denied write tool", "approve_leave_request", models.RoleWaiter, ErrForbidden, ""},
		{"unknown tool fails closed", "drop_database", models.RoleAdmin, ErrUnknownTool, ""},
		{"manager write tool", "create_shift", models.RoleManager, nil, KindWrite},
		{"waiter read tool", "get_reservations", models.RoleWaiter, nil, KindRead},
		{"bar delegate tool", "delegate_cocktail_specialist", models.RoleBar, nil, KindDelegate},
		{"waiter allowed write tool still write kind", "create_reservation", models.RoleWaiter, nil, KindWrite},
		{"kitchen denied delegate", "delegate_web_researcher", models.RoleKitchen, ErrForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := reg.Resolve(tt.tool, tt.role)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve(%s, %s) err = %v, want %v", tt.tool, tt.role, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%s, %s) unexpected err: %v", tt.tool, tt.role, err)
			}
			if d.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", d.Kind, tt.wantKind)
			}
		})
	}
}

func TestIsAllowed_UnknownToolFailsClosed(t *testing.T) {
	reg := DefaultRegistry()
	if reg.IsAllowed("nonexistent_tool", models.RoleAdmin) {
		t.Error("unknown tool must not be allowed for any role")
	}
}

func TestDefaultRegistry_WriteToolsGated(t *testing.T) {
	reg := DefaultRegistry()
	for _, name := range writeToolNames {
		d, ok := reg.Lookup(name)
		if !ok {
			t.Errorf("write tool %s missing from registry", name)
			continue
		}
		if d.Kind != KindWrite {
			t.Errorf("%s registered as %s, want write", name, d.Kind)
		}
	}
}

func TestDefaultRegistry_DelegatesNeverWrite(t *testing.T) {
	reg := DefaultRegistry()
	for _, name := range delegateTools {
		d, ok := reg.Lookup(name)
		if !ok {
			t.Errorf("delegate tool %s missing from registry", name)
			continue
		}
		if d.Kind != KindDelegate {
			t.Errorf("%s registered as %s, want delegate", name, d.Kind)
		}
	}
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name        string
		descriptors []Descriptor
		wantErr     bool
	}{
		{"empty name", []Descriptor{{Name: "", Kind: KindRead}}, true},
		{"bad kind", []Descriptor{{Name: "x", Kind: Kind("mystery")}}, true},
		{"duplicate", []Descriptor{{Name: "x", Kind: KindRead}, {Name: "x", Kind: KindRead}}, true},
		{"ok", []Descriptor{{Name: "x", Kind: KindRead}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.descriptors)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRegistry err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

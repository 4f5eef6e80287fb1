package validation

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name      string
		tool      string
		params    string
		wantOK    bool
		wantField string
	}{
		{
			name:   "valid shift",
			tool:   "create_shift",
			params: `{"employee_id":"4f9d64cc-2a77-4f2f-9a65-54a8a6f2b0d1","date":"2026-09-01","start_time":"18:00","end_time":"23:30"}`,
			wantOK: true,
		},
		{
			name:      "shift with end before start",
			tool:      "create_shift",
			params:    `{"employee_id":"4f9d64cc-2a77-4f2f-9a65-54a8a6f2b0d1","date":"2026-09-01","start_time":"18:00","end_time":"17:00"}`,
			wantField: "end_time",
		},
		{
			name:      "shift with malformed uuid",
			tool:      "create_shift",
			params:    `{"employee_id":"not-a-uuid","date":"2026-09-01","start_time":"18:00","end_time":"23:00"}`,
			wantField: "employee_id",
		},
		{
			name:      "shift with bad date",
			tool:      "create_shift",
			params:    `{"employee_id":"4f9d64cc-2a77-4f2f-9a65-54a8a6f2b0d1","date":"01/09/2026","start_time":"18:00","end_time":"23:00"}`,
			wantField: "date",
		},
		{
			name:   "missing required field",
			tool:   "create_reservation",
			params: `{"guest_name":"Marta"}`,
		},
		{
			name:      "party size out of range",
			tool:      "create_reservation",
			params:    `{"guest_name":"Marta","party_size":0,"reservation_date":"2026-09-05","reservation_time":"21:00"}`,
			wantField: "party_size",
		},
		{
			name:      "unknown enum value",
			tool:      "update_reservation_status",
			params:    `{"reservation_id":"4f9d64cc-2a77-4f2f-9a65-54a8a6f2b0d1","status":"vanished"}`,
			wantField: "status",
		},
		{
			name:      "unexpected extra field",
			tool:      "delete_shift",
			params:    `{"shift_id":"4f9d64cc-2a77-4f2f-9a65-54a8a6f2b0d1","force":true}`,
			wantField: "",
		},
		{
			name:   "leave request same day",
			tool:   "create_leave_request",
			params: `{"employee_id":"4f9d64cc-2a77-4f2f-9a65-54a8a6f2b0d1","start_date":"2026-09-10","end_date":"2026-09-10"}`,
			wantOK: true,
		},
		{
			name:      "leave request end before start",
			tool:      "create_leave_request",
			params:    `{"employee_id":"4f9d64cc-2a77-4f2f-9a65-54a8a6f2b0d1","start_date":"2026-09-10","end_date":"2026-09-09"}`,
			wantField: "end_date",
		},
		{
			name:   "no schema registered fails closed",
			tool:   "drop_database",
			params: `{}`,
		},
		{
			name:   "parameters not valid json",
			tool:   "create_shift",
			params: `{"employee_id":`,
		},
		{
			name:   "batch schedule valid",
			tool:   "batch_sync_schedule",
			params: `{"week_start_date":"2026-09-07","shifts":[{"employee_id":"4f9d64cc-2a77-4f2f-9a65-54a8a6f2b0d1","date":"2026-09-07","shift_type":"night","start_time":"18:00","end_time":"02:00"}]}`,
			wantOK: true,
		},
		{
			name:   "batch schedule empty shift list",
			tool:   "batch_sync_schedule",
			params: `{"week_start_date":"2026-09-07","shifts":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized, verr := v.Validate(tt.tool, json.RawMessage(tt.params))
			if tt.wantOK {
				if verr != nil {
					t.Fatalf("Validate(%s) unexpected error: %v", tt.tool, verr)
				}
				if !json.Valid(normalized) {
					t.Fatalf("normalized params are not valid JSON: %s", normalized)
				}
				return
			}
			if verr == nil {
				t.Fatalf("Validate(%s) succeeded, want error", tt.tool)
			}
			if verr.Tool != tt.tool {
				t.Errorf("error tool = %s, want %s", verr.Tool, tt.tool)
			}
			if len(verr.Fields) == 0 {
				t.Fatal("error carries no field details")
			}
			if tt.wantField != "" {
				found := false
				for _, f := range verr.Fields {
					if strings.Contains(f.Field, tt.wantField) {
						found = true
					}
				}
				if !found {
					t.Errorf("no field error mentions %q: %+v", tt.wantField, verr.Fields)
				}
			}
		})
	}
}

func TestValidate_EmptyParamsTreatedAsEmptyObject(t *testing.T) {
	v := NewValidator()

	// export_schedule_excel requires week_start_date, so an empty body
	// must fail on the missing field rather than on a parse error.
	_, verr := v.Validate("export_schedule_excel", nil)
	if verr == nil {
		t.Fatal("expected validation error for empty parameters")
	}
}

func TestHasSchema_CoversEveryWriteTool(t *testing.T) {
	v := NewValidator()
	for tool := range writeToolSchemas {
		if !v.HasSchema(tool) {
			t.Errorf("HasSchema(%s) = false", tool)
		}
	}
	if v.HasSchema("get_reservations") {
		t.Error("read tool must not have a write schema")
	}
}

func TestError_MessageIncludesFieldPaths(t *testing.T) {
	err := &Error{
		Tool: "create_shift",
		Fields: []FieldError{
			{Field: "end_time", Message: "must be after start_time"},
			{Message: "overall shape invalid"},
		},
	}
	msg := err.Error()
	for _, want := range []string{"create_shift", "end_time: must be after start_time", "overall shape invalid"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

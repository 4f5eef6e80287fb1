package tools

import (
	"encoding/json"

	"github.com/grandcafe/concierge/pkg/models"
)

// Tool groupings by business domain. The role map below composes these
// into per-role allow lists; the write and delegate sets classify dispatch.
var (
	salesTools = []string{"query_sales", "record_daily_sales", "close_register"}
	stockTools = []string{"get_stock_levels", "record_stock_movement", "create_purchase_order"}
	staffTools = []string{
		"get_staff_schedule", "suggest_schedule", "create_shift", "update_shift",
		"delete_shift", "approve_leave_request", "update_employee", "employee_performance",
		"get_employees", "get_employee_details", "get_leave_requests",
		"get_employee_availability", "get_schedule_plans",
		"create_task", "update_task_status", "create_leave_request",
	}
	reservationTools = []string{"get_reservations", "create_reservation", "update_reservation_status", "assign_table"}
	eventTools       = []string{"get_events", "create_event", "update_event"}
	socialTools      = []string{"generate_social_post", "draft_newsletter", "get_reviews", "draft_review_reply"}
	financeTools     = []string{"query_financials", "record_expense", "profit_analysis"}
	analyticalTools  = []string{"analyze_trends", "compare_periods", "predict_demand"}
	taxTools         = []string{"query_tax_data", "generate_tax_form_url", "save_tax_declaration"}
	cocktailTools    = []string{
		"get_cocktail_recipe", "get_cocktail_cost", "search_cocktails_by_ingredient",
		"get_cocktail_preparation_guide", "suggest_cocktail",
	}
	delegateTools = []string{
		"delegate_document_generator", "delegate_web_researcher", "delegate_schedule_optimizer",
		"delegate_sports_events", "delegate_advertising_manager", "delegate_cocktail_specialist",
		"delegate_compliance_auditor", "delegate_financial_reporter", "delegate_marketing_campaign",
	}
	adTools           = []string{"get_ads", "create_ad", "update_ad", "delegate_advertising_manager"}
	couponTools       = []string{"get_coupons", "validate_coupon"}
	trainingTools     = []string{"get_training_guide", "get_training_compliance"}
	taskResourceTools = []string{"get_task_templates", "get_overdue_tasks", "get_business_resource"}
	zoneTools         = []string{"get_zone_assignments", "get_floor_sections", "assign_zone"}
	taskPlanTools     = []string{
		"get_weekly_task_plan", "create_planned_task", "update_planned_task", "export_task_plan",
	}
	imageTools  = []string{"generate_image"}
	exportTools = []string{"export_to_excel"}

	// batchWriteTools are produced by sub-agent pending writes rather than
	// direct model tool calls. They still live in the registry so every
	// pending action references a registered, role-checked tool.
	batchWriteTools = []string{
		"batch_create_events", "batch_sync_schedule", "batch_sync_task_plan",
		"publish_schedule", "publish_task_plan",
		"export_schedule_excel", "export_task_plan_excel",
	}
)

// writeToolNames is the distinguished subset of tools that mutate
// persistent state. Every one of these passes through the confirmation
// gate before execution.
var writeToolNames = []string{
	"create_shift", "update_shift", "delete_shift", "approve_leave_request",
	"update_employee", "create_reservation", "update_reservation_status",
	"assign_table", "create_event", "update_event", "record_stock_movement",
	"create_purchase_order", "record_daily_sales", "record_expense",
	"close_register", "save_tax_declaration", "create_task_from_template",
	"create_task", "update_task_status", "create_leave_request",
	"batch_create_events", "batch_sync_schedule", "batch_sync_task_plan",
	"publish_schedule", "publish_task_plan", "export_schedule_excel",
	"export_task_plan_excel", "create_ad", "update_ad", "validate_coupon",
	"create_planned_task", "update_planned_task", "assign_zone", "export_task_plan",
}

// managementRoleTools composes the full management allow list shared by
// admin, owner, and (mostly) manager.
func managementRoleTools() []string {
	var out []string
	for _, group := range [][]string{
		salesTools, stockTools, staffTools, reservationTools, eventTools,
		socialTools, financeTools, analyticalTools, cocktailTools,
		delegateTools, trainingTools, taskResourceTools, imageTools,
		exportTools, adTools, couponTools, zoneTools, taskPlanTools,
		batchWriteTools,
	} {
		out = append(out, group...)
	}
	return append(out, "create_task_from_template")
}

// roleToolNames maps each role to its allowed tool names.
var roleToolNames = map[models.Role][]string{
	models.RoleAdmin: append(managementRoleTools(), taxTools...),
	models.RoleOwner: append(managementRoleTools(), taxTools...),

	// Managers get read-only tax access (no save_tax_declaration).
	models.RoleManager: append(managementRoleTools(), "query_tax_data", "generate_tax_form_url"),

	models.RoleKitchen: {
		"get_stock_levels", "record_stock_movement",
		"get_staff_schedule",
		"get_cocktail_recipe", "get_cocktail_preparation_guide",
		"suggest_cocktail", "search_cocktails_by_ingredient",
		"predict_demand",
		"get_training_guide", "get_overdue_tasks",
	},
	models.RoleBar: append([]string{
		"get_stock_levels", "record_stock_movement",
		"get_events",
		"get_staff_schedule",
		"predict_demand",
		"get_training_guide", "get_overdue_tasks",
		"validate_coupon",
		"delegate_cocktail_specialist",
		"generate_image",
	}, cocktailTools...),
	models.RoleWaiter: {
		"get_reservations", "create_reservation", "update_reservation_status",
		"get_events",
		"get_staff_schedule",
		"get_reviews",
		"get_cocktail_recipe", "suggest_cocktail", "get_cocktail_preparation_guide",
		"predict_demand",
		"get_training_guide", "get_overdue_tasks",
		"validate_coupon",
		"get_zone_assignments", "get_floor_sections", "get_weekly_task_plan",
	},
	models.RoleDJ: {
		"get_events", "create_event", "update_event",
		"get_staff_schedule",
		"get_cocktail_recipe", "get_cocktail_preparation_guide", "suggest_cocktail",
		"predict_demand",
		"get_training_guide",
	},
}

// genericObjectSchema is the advertised input schema for tools whose
// parameter bodies live with their external executors.
var genericObjectSchema = json.RawMessage(`{"type":"object","additionalProperties":true}`)

// delegateSchema is the input schema shared by all delegate_* tools.
var delegateSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"task": {"type": "string", "description": "What the specialist should accomplish"}
	},
	"additionalProperties": true
}`)

// DefaultRegistry builds the full restaurant tool registry: every tool
// name referenced by any role, classified as read, write, or delegate,
// with its allowed-roles set derived from the role map.
func DefaultRegistry() *Registry {
	writes := make(map[string]struct{}, len(writeToolNames))
	for _, n := range writeToolNames {
		writes[n] = struct{}{}
	}
	delegates := make(map[string]struct{}, len(delegateTools))
	for _, n := range delegateTools {
		delegates[n] = struct{}{}
	}

	// Invert role → tools into tool → roles.
	roles := make(map[string]map[models.Role]struct{})
	for role, names := range roleToolNames {
		for _, n := range names {
			if roles[n] == nil {
				roles[n] = make(map[models.Role]struct{})
			}
			roles[n][role] = struct{}{}
		}
	}

	descriptors := make([]Descriptor, 0, len(roles))
	for name, allowed := range roles {
		d := Descriptor{
			Name:         name,
			Kind:         KindRead,
			InputSchema:  genericObjectSchema,
			AllowedRoles: allowed,
		}
		if _, ok := writes[name]; ok {
			d.Kind = KindWrite
		}
		if _, ok := delegates[name]; ok {
			d.Kind = KindDelegate
			d.InputSchema = delegateSchema
		}
		descriptors = append(descriptors, d)
	}

	reg, err := NewRegistry(descriptors)
	if err != nil {
		// The built-in catalog is static; a construction failure is a bug.
		panic(err)
	}
	return reg
}

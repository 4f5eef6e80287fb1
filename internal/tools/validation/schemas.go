package validation

// writeToolSchemas holds the JSON Schema source for every write tool's
// parameters. A write tool without an entry here cannot create a pending
// action. Dates are YYYY-MM-DD; times are HH:MM and compare
// lexicographically.
var writeToolSchemas = map[string]string{
	"create_shift": `{
		"type": "object",
		"properties": {
			"employee_id": {"type": "string", "format": "uuid"},
			"date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"start_time": {"type": "string"},
			"end_time": {"type": "string"},
			"role": {"type": "string"}
		},
		"required": ["employee_id", "date", "start_time", "end_time"],
		"additionalProperties": false
	}`,

	"update_shift": `{
		"type": "object",
		"properties": {
			"shift_id": {"type": "string", "format": "uuid"},
			"start_time": {"type": "string"},
			"end_time": {"type": "string"},
			"role": {"type": "string"}
		},
		"required": ["shift_id"],
		"additionalProperties": false
	}`,

	"delete_shift": `{
		"type": "object",
		"properties": {
			"shift_id": {"type": "string", "format": "uuid"}
		},
		"required": ["shift_id"],
		"additionalProperties": false
	}`,

	"approve_leave_request": `{
		"type": "object",
		"properties": {
			"leave_id": {"type": "string", "format": "uuid"}
		},
		"required": ["leave_id"],
		"additionalProperties": false
	}`,

	"update_employee": `{
		"type": "object",
		"properties": {
			"employee_id": {"type": "string", "format": "uuid"},
			"name": {"type": "string"},
			"phone": {"type": "string"},
			"email": {"type": "string", "format": "email"},
			"role": {"type": "string"},
			"hourly_rate": {"type": "number", "exclusiveMinimum": 0}
		},
		"required": ["employee_id"],
		"additionalProperties": false
	}`,

	"create_reservation": `{
		"type": "object",
		"properties": {
			"guest_name": {"type": "string", "minLength": 1},
			"party_size": {"type": "integer", "minimum": 1, "maximum": 50},
			"reservation_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"reservation_time": {"type": "string"},
			"guest_phone": {"type": "string"},
			"guest_email": {"type": "string", "format": "email"},
			"special_requests": {"type": "string"},
			"table_id": {"type": "string", "format": "uuid"}
		},
		"required": ["guest_name", "party_size", "reservation_date", "reservation_time"],
		"additionalProperties": false
	}`,

	"update_reservation_status": `{
		"type": "object",
		"properties": {
			"reservation_id": {"type": "string", "format": "uuid"},
			"status": {"enum": ["pending", "confirmed", "seated", "completed", "cancelled", "no_show"]}
		},
		"required": ["reservation_id", "status"],
		"additionalProperties": false
	}`,

	"assign_table": `{
		"type": "object",
		"properties": {
			"reservation_id": {"type": "string", "format": "uuid"},
			"table_id": {"type": "string", "format": "uuid"}
		},
		"required": ["reservation_id", "table_id"],
		"additionalProperties": false
	}`,

	"create_event": `{
		"type": "object",
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"event_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"start_time": {"type": "string"},
			"end_time": {"type": "string"},
			"event_type": {"enum": ["dj_night", "sports", "themed", "private"]},
			"description": {"type": "string"},
			"dj_id": {"type": "string", "format": "uuid"}
		},
		"required": ["title", "event_date", "start_time"],
		"additionalProperties": false
	}`,

	"update_event": `{
		"type": "object",
		"properties": {
			"event_id": {"type": "string", "format": "uuid"},
			"title": {"type": "string"},
			"event_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"start_time": {"type": "string"},
			"end_time": {"type": "string"},
			"event_type": {"enum": ["dj_night", "sports", "themed", "private"]},
			"description": {"type": "string"},
			"status": {"type": "string"}
		},
		"required": ["event_id"],
		"additionalProperties": false
	}`,

	"record_stock_movement": `{
		"type": "object",
		"properties": {
			"product_id": {"type": "string", "format": "uuid"},
			"quantity": {"type": "number"},
			"movement_type": {"enum": ["in", "out"]},
			"notes": {"type": "string"},
			"date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}
		},
		"required": ["product_id", "quantity", "movement_type"],
		"additionalProperties": false
	}`,

	"create_purchase_order": `{
		"type": "object",
		"properties": {
			"supplier_id": {"type": "string", "format": "uuid"},
			"supplier_name": {"type": "string"},
			"items": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"properties": {
						"product_id": {"type": "string", "format": "uuid"},
						"quantity": {"type": "number", "exclusiveMinimum": 0},
						"unit_price": {"type": "number", "exclusiveMinimum": 0}
					},
					"required": ["product_id", "quantity"],
					"additionalProperties": false
				}
			},
			"notes": {"type": "string"},
			"expected_delivery": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}
		},
		"required": ["items"],
		"additionalProperties": false
	}`,

	"record_daily_sales": `{
		"type": "object",
		"properties": {
			"date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"food_revenue": {"type": "number", "minimum": 0},
			"drink_revenue": {"type": "number", "minimum": 0},
			"cocktail_revenue": {"type": "number", "minimum": 0},
			"beer_revenue": {"type": "number", "minimum": 0},
			"dessert_revenue": {"type": "number", "minimum": 0},
			"total_covers": {"type": "integer", "minimum": 0}
		},
		"required": ["date"],
		"additionalProperties": false
	}`,

	"record_expense": `{
		"type": "object",
		"properties": {
			"category": {"type": "string", "minLength": 1},
			"amount": {"type": "number", "exclusiveMinimum": 0},
			"description": {"type": "string"},
			"date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"vendor": {"type": "string"},
			"receipt_ref": {"type": "string"}
		},
		"required": ["category", "amount"],
		"additionalProperties": false
	}`,

	"close_register": `{
		"type": "object",
		"properties": {
			"date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"cash_counted": {"type": "number", "minimum": 0},
			"card_total": {"type": "number", "minimum": 0},
			"expected_cash": {"type": "number", "minimum": 0},
			"notes": {"type": "string"}
		},
		"required": ["date", "cash_counted"],
		"additionalProperties": false
	}`,

	"save_tax_declaration": `{
		"type": "object",
		"properties": {
			"form": {"type": "string", "minLength": 1},
			"period": {"type": "string", "minLength": 1},
			"year": {"type": "integer", "minimum": 2000, "maximum": 2100},
			"fields": {"type": "object"}
		},
		"required": ["form", "period", "year"],
		"additionalProperties": false
	}`,

	"create_task": `{
		"type": "object",
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"assignee_id": {"type": "string", "format": "uuid"},
			"priority": {"enum": ["low", "medium", "high", "urgent"]},
			"due_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"checklist": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["title", "assignee_id"],
		"additionalProperties": false
	}`,

	"update_task_status": `{
		"type": "object",
		"properties": {
			"task_id": {"type": "string", "format": "uuid"},
			"status": {"enum": ["pending", "in_progress", "completed", "cancelled"]},
			"assignee_id": {"type": "string", "format": "uuid"},
			"priority": {"enum": ["low", "medium", "high", "urgent"]}
		},
		"required": ["task_id"],
		"additionalProperties": false
	}`,

	"create_task_from_template": `{
		"type": "object",
		"properties": {
			"template_id": {"type": "string", "format": "uuid"},
			"assignee_id": {"type": "string", "format": "uuid"},
			"due_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}
		},
		"required": ["template_id"],
		"additionalProperties": false
	}`,

	"create_leave_request": `{
		"type": "object",
		"properties": {
			"employee_id": {"type": "string", "format": "uuid"},
			"start_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"end_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"leave_type": {"enum": ["vacation", "sick", "personal", "other"]},
			"notes": {"type": "string"}
		},
		"required": ["employee_id", "start_date", "end_date"],
		"additionalProperties": false
	}`,

	"batch_create_events": `{
		"type": "object",
		"properties": {
			"events": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"properties": {
						"title": {"type": "string", "minLength": 1},
						"event_date": {"type": "string"},
						"start_time": {"type": "string"},
						"end_time": {"type": "string"},
						"event_type": {"type": "string"},
						"sport_name": {"type": "string"},
						"home_team": {"type": "string"},
						"away_team": {"type": "string"},
						"broadcast_channel": {"type": "string"},
						"match_info": {"type": "string"}
					},
					"required": ["title", "event_date", "start_time"],
					"additionalProperties": false
				}
			},
			"descriptions": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["events"],
		"additionalProperties": false
	}`,

	"batch_sync_schedule": `{
		"type": "object",
		"properties": {
			"week_start_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"shifts": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"properties": {
						"employee_id": {"type": "string", "format": "uuid"},
						"date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
						"shift_type": {"enum": ["morning", "afternoon", "night", "split", "day_off"]},
						"start_time": {"type": "string"},
						"end_time": {"type": "string"},
						"second_start_time": {"type": "string"},
						"second_end_time": {"type": "string"},
						"break_minutes": {"type": "integer", "minimum": 0},
						"is_day_off": {"type": "boolean"},
						"notes": {"type": "string"}
					},
					"required": ["employee_id", "date", "shift_type"],
					"additionalProperties": false
				}
			}
		},
		"required": ["week_start_date", "shifts"],
		"additionalProperties": false
	}`,

	"batch_sync_task_plan": `{
		"type": "object",
		"properties": {
			"week_start_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"tasks": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"properties": {
						"title": {"type": "string", "minLength": 1},
						"day_of_week": {"type": "integer", "minimum": 0, "maximum": 6},
						"priority": {"enum": ["low", "medium", "high", "urgent"]},
						"assigned_to": {"type": "string", "format": "uuid"},
						"assigned_role": {"type": "string"},
						"shift_type": {"enum": ["morning", "afternoon", "night"]},
						"estimated_minutes": {"type": "integer", "minimum": 1},
						"section_id": {"type": "string", "format": "uuid"},
						"template_id": {"type": "string", "format": "uuid"}
					},
					"required": ["title", "day_of_week", "priority"],
					"additionalProperties": false
				}
			}
		},
		"required": ["week_start_date", "tasks"],
		"additionalProperties": false
	}`,

	"publish_schedule": `{
		"type": "object",
		"properties": {
			"plan_id": {"type": "string", "format": "uuid"}
		},
		"required": ["plan_id"],
		"additionalProperties": false
	}`,

	"publish_task_plan": `{
		"type": "object",
		"properties": {
			"plan_id": {"type": "string", "format": "uuid"}
		},
		"required": ["plan_id"],
		"additionalProperties": false
	}`,

	"export_schedule_excel": `{
		"type": "object",
		"properties": {
			"week_start_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}
		},
		"required": ["week_start_date"],
		"additionalProperties": false
	}`,

	"export_task_plan_excel": `{
		"type": "object",
		"properties": {
			"week_start_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}
		},
		"required": ["week_start_date"],
		"additionalProperties": false
	}`,

	"create_ad": `{
		"type": "object",
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"channel": {"enum": ["instagram", "facebook", "google", "print", "radio"]},
			"budget": {"type": "number", "minimum": 0},
			"start_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"end_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"content": {"type": "string"}
		},
		"required": ["title", "channel"],
		"additionalProperties": false
	}`,

	"update_ad": `{
		"type": "object",
		"properties": {
			"ad_id": {"type": "string", "format": "uuid"},
			"title": {"type": "string"},
			"budget": {"type": "number", "minimum": 0},
			"status": {"enum": ["draft", "active", "paused", "finished"]},
			"content": {"type": "string"}
		},
		"required": ["ad_id"],
		"additionalProperties": false
	}`,

	"validate_coupon": `{
		"type": "object",
		"properties": {
			"code": {"type": "string", "minLength": 1},
			"redeem": {"type": "boolean"}
		},
		"required": ["code"],
		"additionalProperties": false
	}`,

	"create_planned_task": `{
		"type": "object",
		"properties": {
			"plan_id": {"type": "string", "format": "uuid"},
			"title": {"type": "string", "minLength": 1},
			"day_of_week": {"type": "integer", "minimum": 0, "maximum": 6},
			"priority": {"enum": ["low", "medium", "high", "urgent"]},
			"assigned_to": {"type": "string", "format": "uuid"},
			"shift_type": {"enum": ["morning", "afternoon", "night"]}
		},
		"required": ["plan_id", "title", "day_of_week"],
		"additionalProperties": false
	}`,

	"update_planned_task": `{
		"type": "object",
		"properties": {
			"task_id": {"type": "string", "format": "uuid"},
			"title": {"type": "string"},
			"day_of_week": {"type": "integer", "minimum": 0, "maximum": 6},
			"priority": {"enum": ["low", "medium", "high", "urgent"]},
			"assigned_to": {"type": "string", "format": "uuid"},
			"done": {"type": "boolean"}
		},
		"required": ["task_id"],
		"additionalProperties": false
	}`,

	"assign_zone": `{
		"type": "object",
		"properties": {
			"employee_id": {"type": "string", "format": "uuid"},
			"section_id": {"type": "string", "format": "uuid"},
			"date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"shift_type": {"enum": ["morning", "afternoon", "night"]}
		},
		"required": ["employee_id", "section_id", "date"],
		"additionalProperties": false
	}`,

	"export_task_plan": `{
		"type": "object",
		"properties": {
			"week_start_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
			"format": {"enum": ["pdf", "excel"]}
		},
		"required": ["week_start_date"],
		"additionalProperties": false
	}`,
}

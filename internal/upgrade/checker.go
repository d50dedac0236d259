// Package upgrade implements the startup schema guardrail: startup lists
// required columns per table and refuses to boot if any are missing,
// rather than comparing against a single schema_migrations version number.
package upgrade

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// requiredColumns names the columns every Ping Watch component depends on,
// spanning migrations 0001 through 0012 (migrations/*.up.sql). Each entry
// is checked independently so a partially-applied migration run is caught
// precisely, not just flagged as "some version mismatch".
var requiredColumns = map[string][]string{
	"users":                  {"user_id", "email", "created_at"},
	"auth_sessions":          {"auth_session_id", "user_id", "token_hash", "expires_at", "revoked_at"},
	"devices":                {"device_id", "user_id", "label", "telegram_endpoint_id", "telegram_chat_id", "telegram_username", "telegram_linked_at"},
	"sessions":               {"session_id", "device_id", "user_id", "status", "started_at", "stopped_at", "analysis_prompt"},
	"events":                 {"event_id", "session_id", "user_id", "device_id", "status", "trigger_type", "clip_uri", "clip_mime", "clip_size_bytes", "clip_container", "clip_blob_name", "clip_uploaded_at", "clip_etag", "summary", "label", "confidence", "inference_provider", "inference_model", "should_notify", "alert_reason", "matched_rules", "detected_entities", "detected_actions"},
	"telegram_link_attempts": {"attempt_id", "device_id", "user_id", "token_hash", "status", "expires_at", "linked_at", "chat_id", "telegram_username"},
	"notification_endpoints": {"endpoint_id", "user_id", "provider", "chat_id", "telegram_username", "linked_at"},
	"queue_jobs":             {"job_id", "queue_name", "fn_name", "payload", "status", "created_at"},
}

// SchemaStatus is the result of CheckSchema.
type SchemaStatus struct {
	Compatible bool
	Missing    []string // "table.column" entries, sorted
}

// CheckSchema queries information_schema.columns for every column named in
// requiredColumns and reports any that are absent. The check is
// column-level rather than a single version counter, so a database
// mid-upgrade (some migrations applied, not all) is diagnosed precisely
// instead of as a single opaque "outdated" verdict.
func CheckSchema(ctx context.Context, db *sql.DB) (*SchemaStatus, error) {
	existing, err := loadExistingColumns(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("load information_schema.columns: %w", err)
	}

	var missing []string
	for table, cols := range requiredColumns {
		for _, col := range cols {
			if !existing[table][col] {
				missing = append(missing, table+"."+col)
			}
		}
	}
	sort.Strings(missing)

	return &SchemaStatus{
		Compatible: len(missing) == 0,
		Missing:    missing,
	}, nil
}

func loadExistingColumns(ctx context.Context, db *sql.DB) (map[string]map[string]bool, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT table_name, column_name FROM information_schema.columns WHERE table_schema = 'public'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[string]bool)
	for rows.Next() {
		var table, col string
		if err := rows.Scan(&table, &col); err != nil {
			return nil, err
		}
		if out[table] == nil {
			out[table] = make(map[string]bool)
		}
		out[table][col] = true
	}
	return out, rows.Err()
}

// FormatError renders the operator-facing directive printed when the
// guardrail refuses to boot.
func FormatError(s *SchemaStatus) string {
	return fmt.Sprintf(
		"database schema is missing required columns: %v\n\nRun: pingwatch migrate up\n",
		s.Missing,
	)
}

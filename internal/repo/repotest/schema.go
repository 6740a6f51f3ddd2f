// Package repotest opens sqlite databases carrying the billing schema for
// repository and service tests.
package repotest

import (
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE subscription_plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		price_monthly NUMERIC NOT NULL,
		price_yearly NUMERIC NOT NULL,
		currency TEXT NOT NULL DEFAULT 'mxn',
		stripe_price_id_monthly TEXT,
		stripe_price_id_yearly TEXT,
		max_properties INTEGER NOT NULL,
		featured_listings INTEGER NOT NULL DEFAULT 0,
		max_agents INTEGER NOT NULL DEFAULT 1,
		highlights TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE subscriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		billing_cycle TEXT NOT NULL DEFAULT 'monthly',
		status TEXT NOT NULL,
		current_period_start DATETIME NOT NULL,
		current_period_end DATETIME NOT NULL,
		cancel_at_period_end INTEGER NOT NULL DEFAULT 0,
		stripe_customer_id TEXT,
		stripe_subscription_id TEXT UNIQUE,
		featured_used_this_month INTEGER NOT NULL DEFAULT 0,
		featured_counter_reset_at DATETIME,
		past_due_since DATETIME,
		dunning_stage INTEGER NOT NULL DEFAULT 0,
		suspended_at DATETIME,
		canceled_at DATETIME,
		last_event_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_subscriptions_user_live ON subscriptions (user_id) WHERE status IN ('active', 'trialing')`,
	`CREATE TABLE subscription_changes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		subscription_id TEXT NOT NULL,
		previous_plan_id TEXT,
		new_plan_id TEXT,
		previous_billing_cycle TEXT,
		new_billing_cycle TEXT,
		change_type TEXT NOT NULL,
		admin_forced INTEGER NOT NULL DEFAULT 0,
		bypassed_cooldown INTEGER NOT NULL DEFAULT 0,
		changed_by TEXT,
		metadata BLOB,
		changed_at DATETIME NOT NULL
	)`,
	`CREATE TABLE trial_tracking (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		ip_address TEXT,
		device_fingerprint TEXT,
		trial_started_at DATETIME NOT NULL
	)`,
	`CREATE TABLE properties (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		title TEXT NOT NULL,
		status TEXT NOT NULL,
		paused_reason TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE featured_properties (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		status TEXT NOT NULL,
		start_date DATETIME NOT NULL,
		end_date DATETIME NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE user_roles (
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		granted_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, role)
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		CONSTRAINT ux_outbox_events_event_aggregate UNIQUE (event_type, aggregate_type, aggregate_id)
	)`,
}

// Open returns an isolated in-memory database with every billing table.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	if sqlDB, err := conn.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	return conn
}

package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBillingAttemptMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_billing_attempt_logs.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no billing attempt migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS billing_attempt_logs",
		"CONSTRAINT ux_billing_attempts_sub_cycle UNIQUE (subscription_id, billing_cycle)",
		"idempotency_key TEXT NOT NULL UNIQUE",
		"REFERENCES subscriptions(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS billing_attempt_logs",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestSubscriptionMigrationGuardsLeadHours(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_subscriptions.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no subscription migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CHECK (billing_lead_hours BETWEEN 1 AND 168)",
		"CHECK (preferred_day_of_week BETWEEN 0 AND 6)",
		"status subscription_status NOT NULL DEFAULT 'active'",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

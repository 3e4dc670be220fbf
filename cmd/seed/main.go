package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"marketplace-billing/internal/config"
	"marketplace-billing/internal/domain/model"
	"marketplace-billing/internal/domain/ports/repository"
	pg "marketplace-billing/internal/infra/db/postgres"
	"marketplace-billing/internal/infra/web"
)

// Creates the schema if missing and seeds one profile per tenant table, then
// prints a dev token pair for each so the checkout flow can be exercised by
// hand.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	for _, ddl := range schema() {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			log.Fatalf("schema: %v", err)
		}
	}
	fmt.Println("schema ready")

	tenantRepo := pg.NewTenantRepo(pool)
	sessions := web.NewSessionManager(cfg.Auth.HMACSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)

	for _, t := range model.ProfileProbeOrder {
		profileID := uuid.NewString()
		email := fmt.Sprintf("%s@example.test", t)
		rec, err := model.NewTenantRecord(profileID, t, email)
		if err != nil {
			log.Fatalf("seed %s: %v", t, err)
		}
		if err := tenantRepo.Save(ctx, repository.NoTX, rec); err != nil {
			log.Fatalf("seed %s: %v", t, err)
		}
		pair, err := sessions.Mint(profileID, email)
		if err != nil {
			log.Fatalf("mint tokens for %s: %v", t, err)
		}
		fmt.Printf("seeded %s: profile=%s tier=%s status=%s\n", t, profileID, rec.Tier, rec.Status)
		fmt.Printf("  access_token=%s\n", pair.AccessToken)
		fmt.Printf("  refresh_token=%s\n", pair.RefreshToken)
	}

	fmt.Println("seeding complete")
}

func schema() []string {
	tenantTable := func(name, extra string) string {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  profile_id               TEXT PRIMARY KEY,
  email                    TEXT NOT NULL,
  subscription_tier        TEXT NOT NULL DEFAULT 'basic',
  subscription_status      TEXT NOT NULL DEFAULT 'active',
  external_customer_id     TEXT,
  external_subscription_id TEXT,
  subscription_end_date    TIMESTAMPTZ,
  last_payment_date        TIMESTAMPTZ,
  last_authoritative_at    TIMESTAMPTZ,
  updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()%s
);
CREATE INDEX IF NOT EXISTS idx_%s_customer ON %s (external_customer_id);`, name, extra, name, name)
	}

	return []string{
		tenantTable("workers", ""),
		tenantTable("employers", ""),
		tenantTable("accountants", ""),
		tenantTable("cleaning_companies", ""),
		tenantTable("regular_users", `,
  is_premium               BOOLEAN NOT NULL DEFAULT FALSE`),
		`CREATE TABLE IF NOT EXISTS payment_records (
  id                  TEXT PRIMARY KEY,
  profile_id          TEXT NOT NULL,
  tenant_type         TEXT NOT NULL,
  amount              BIGINT NOT NULL,
  currency            TEXT NOT NULL,
  status              TEXT NOT NULL,
  payment_type        TEXT NOT NULL DEFAULT 'subscription',
  application_id      TEXT,
  external_invoice_id TEXT,
  external_customer_id TEXT,
  checkout_session_id TEXT,
  failure_reason      TEXT,
  created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_records_invoice
  ON payment_records (external_invoice_id) WHERE external_invoice_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_payment_records_session ON payment_records (checkout_session_id);
CREATE INDEX IF NOT EXISTS idx_payment_records_pending ON payment_records (created_at) WHERE status = 'pending';`,
		`CREATE TABLE IF NOT EXISTS exam_applications (
  id                TEXT PRIMARY KEY,
  profile_id        TEXT NOT NULL,
  exam_id           TEXT NOT NULL,
  payment_completed BOOLEAN NOT NULL DEFAULT FALSE,
  created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	}
}

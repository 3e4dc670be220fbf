//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"marketplace-billing/internal/domain"
	"marketplace-billing/internal/domain/model"
	"marketplace-billing/internal/usecase"
)

func TestTenantResolver_ResolveByProfileID(t *testing.T) {
	ctx := context.Background()

	t.Run("should return the first table that matches the probe order", func(t *testing.T) {
		tenants := NewMockTenantRepo()
		// Same profile id in two tables; cleaning_company outranks worker.
		for _, typ := range []model.TenantType{model.TenantWorker, model.TenantCleaningCompany} {
			rec, _ := model.NewTenantRecord("p-1", typ, "p@example.test")
			_ = tenants.Save(ctx, nil, rec)
		}
		r := usecase.NewTenantResolver(tenants, newTestLogger())

		rec, err := r.ResolveByProfileID(ctx, "p-1", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Type != model.TenantCleaningCompany {
			t.Fatalf("expected cleaning_company to win, got %s", rec.Type)
		}
	})

	t.Run("should honor a caller-provided order", func(t *testing.T) {
		tenants := NewMockTenantRepo()
		for _, typ := range []model.TenantType{model.TenantWorker, model.TenantCleaningCompany} {
			rec, _ := model.NewTenantRecord("p-1", typ, "p@example.test")
			_ = tenants.Save(ctx, nil, rec)
		}
		r := usecase.NewTenantResolver(tenants, newTestLogger())

		rec, err := r.ResolveByProfileID(ctx, "p-1", []model.TenantType{model.TenantWorker})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Type != model.TenantWorker {
			t.Fatalf("expected worker, got %s", rec.Type)
		}
	})

	t.Run("should return ErrTenantNotFound on a miss", func(t *testing.T) {
		r := usecase.NewTenantResolver(NewMockTenantRepo(), newTestLogger())
		_, err := r.ResolveByProfileID(ctx, "ghost", nil)
		if !errors.Is(err, domain.ErrTenantNotFound) {
			t.Fatalf("expected ErrTenantNotFound, got %v", err)
		}
	})

	t.Run("should reject an empty id", func(t *testing.T) {
		r := usecase.NewTenantResolver(NewMockTenantRepo(), newTestLogger())
		_, err := r.ResolveByProfileID(ctx, "", nil)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestTenantResolver_ResolveByCustomerID(t *testing.T) {
	ctx := context.Background()

	t.Run("should find a record by gateway customer id", func(t *testing.T) {
		tenants := NewMockTenantRepo()
		rec, _ := model.NewTenantRecord("p-1", model.TenantRegularUser, "p@example.test")
		cust := "cus_1"
		rec.ExternalCustomerID = &cust
		_ = tenants.Save(ctx, nil, rec)
		r := usecase.NewTenantResolver(tenants, newTestLogger())

		got, err := r.ResolveByCustomerID(ctx, "cus_1", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ProfileID != "p-1" || got.Type != model.TenantRegularUser {
			t.Fatalf("unexpected record: %+v", got)
		}
	})

	t.Run("should propagate repository failures", func(t *testing.T) {
		tenants := NewMockTenantRepo()
		tenants.FindErr = domain.ErrOperationFailed
		r := usecase.NewTenantResolver(tenants, newTestLogger())

		_, err := r.ResolveByCustomerID(ctx, "cus_1", nil)
		if !errors.Is(err, domain.ErrOperationFailed) {
			t.Fatalf("expected ErrOperationFailed, got %v", err)
		}
	})
}

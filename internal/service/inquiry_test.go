package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/service"
)

func seedInquiries(store *memStore) {
	seedListing(store)
	store.addProperty(domain.Property{ID: "p-2", LandlordID: stranger.UserID, Title: "Other"})
	store.addInquiry(domain.Inquiry{ID: "i-1", PropertyID: "p-1", TenantID: tenant.UserID, Question: "pets?"})
	store.addInquiry(domain.Inquiry{ID: "i-2", PropertyID: "p-2", TenantID: "tenant-2", Question: "parking?"})
}

func TestInquiryList_ScopesByRole(t *testing.T) {
	store := newMemStore()
	seedInquiries(store)
	svc := service.NewInquiryService(store, store, newMetrics(), nop)
	ctx := context.Background()

	rows, err := svc.List(ctx, tenant)
	if err != nil || len(rows) != 1 || rows[0].ID != "i-1" {
		t.Fatalf("tenant should see i-1 only, got %v, %v", rows, err)
	}

	rows, err = svc.List(ctx, stranger)
	if err != nil || len(rows) != 1 || rows[0].ID != "i-2" {
		t.Fatalf("landlord should see inquiries of own listings, got %v, %v", rows, err)
	}
	if !store.lastInquiryFilter.ByProperties {
		t.Error("landlord listing should filter by property")
	}

	rows, err = svc.List(ctx, admin)
	if err != nil || len(rows) != 2 {
		t.Fatalf("admin should see everything, got %v, %v", rows, err)
	}
}

func TestInquiryList_LandlordWithoutListings(t *testing.T) {
	store := newMemStore()
	seedInquiries(store)
	svc := service.NewInquiryService(store, store, newMetrics(), nop)

	rows, err := svc.List(context.Background(), domain.Principal{UserID: "landlord-9", Role: domain.RoleLandlord})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no inquiries, got %d", len(rows))
	}
}

func TestInquiryGet_Permissions(t *testing.T) {
	store := newMemStore()
	seedInquiries(store)
	svc := service.NewInquiryService(store, store, newMetrics(), nop)
	ctx := context.Background()

	inq, err := svc.Get(ctx, landlord, "i-1")
	if err != nil {
		t.Fatalf("owner landlord should read i-1, got %v", err)
	}
	if inq.Property == nil || inq.Property.ID != "p-1" {
		t.Error("expected the property to be embedded")
	}

	if _, err := svc.Get(ctx, tenant, "i-1"); err != nil {
		t.Fatalf("asking tenant should read i-1, got %v", err)
	}

	var fe *domain.ErrForbidden
	if _, err := svc.Get(ctx, stranger, "i-1"); !errors.As(err, &fe) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Get(ctx, tenant, "i-2"); !errors.As(err, &fe) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	var nf *domain.ErrNotFound
	if _, err := svc.Get(ctx, admin, "i-404"); !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

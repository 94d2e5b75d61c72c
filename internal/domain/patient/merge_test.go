package patient

import (
	"testing"
	"time"

	"github.com/ehr/mockserver/internal/platform/apierror"
)

func baseRecord(t *testing.T) *Record {
	t.Helper()
	rec, err := Normalize(Legacy, mustBody(t, `{
		"firstName":"Test","lastName":"Patient","phone":"555-0100","gender":"MALE",
		"insurance":{"providerName":"MockIns","policyNumber":"P123"},
		"team":"Cardiology","isPinned":true,
		"lastOrder":{"orderNumber":"O1","status":"PENDING","orderDate":"2024-02-01","displayText":"CBC"}}`), "creator", t0)
	if err != nil {
		t.Fatalf("base record: %v", err)
	}
	return rec
}

func TestMerge_PresenceNotTruthiness(t *testing.T) {
	existing := baseRecord(t)
	rec, err := Merge(existing, mustBody(t, `{"isPinned":false,"phone":null,"lastOrder":null}`), "editor", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.IsPinned {
		t.Error("explicit false must apply")
	}
	if rec.Phone != nil || rec.LastOrder != nil {
		t.Errorf("explicit null must clear, got phone=%v lastOrder=%v", rec.Phone, rec.LastOrder)
	}
	if rec.FirstName != "Test" || deref(rec.Gender) != "MALE" || rec.Insurance == nil || rec.Team == nil {
		t.Errorf("absent fields must be untouched: %+v", rec)
	}
}

func TestMerge_AuditStamps(t *testing.T) {
	existing := baseRecord(t)
	later := t0.Add(2 * time.Hour)
	rec, err := Merge(existing, mustBody(t, `{"isPinned":true}`), "editor", later)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Metadata.CreatedAt != t0 || rec.Metadata.CreatedBy != "creator" {
		t.Errorf("creation stamps changed: %+v", rec.Metadata)
	}
	if rec.Metadata.UpdatedAt != later || rec.Metadata.UpdatedBy != "editor" {
		t.Errorf("update stamps not refreshed: %+v", rec.Metadata)
	}

	// A clock behind createdAt never moves updatedAt before it.
	rec, err = Merge(existing, mustBody(t, `{"isPinned":true}`), "editor", t0.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Metadata.UpdatedAt.Before(rec.Metadata.CreatedAt) {
		t.Errorf("updatedAt %v before createdAt %v", rec.Metadata.UpdatedAt, rec.Metadata.CreatedAt)
	}
}

func TestMerge_NoUpdatableFields(t *testing.T) {
	for _, body := range []string{`{}`, `{"metadata":{"createdAt":"2000-01-01"}}`, `{"patientId":"NEW"}`} {
		_, err := Merge(baseRecord(t), mustBody(t, body), "editor", t0)
		if apiError(t, err).ErrorCode != apierror.ErrNoUpdatableFields {
			t.Errorf("body %s: expected NO_UPDATABLE_FIELDS", body)
		}
	}
}

func TestMerge_InvalidEnumAppliesNothing(t *testing.T) {
	existing := baseRecord(t)
	before := existing.Clone()
	_, err := Merge(existing, mustBody(t, `{"firstName":"Changed","gender":"X","status":"GONE"}`), "editor", t0.Add(time.Minute))
	apiErr := apiError(t, err)
	if apiErr.ErrorCode != apierror.ErrInvalidField || len(apiErr.Details) != 2 {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if existing.FirstName != before.FirstName || deref(existing.Gender) != deref(before.Gender) || existing.Status != before.Status {
		t.Error("existing record must not be modified by a rejected patch")
	}
}

func TestMerge_PayerReplacesCoverage(t *testing.T) {
	rec, err := Merge(baseRecord(t), mustBody(t, `{"payer":{"planName":"Gold","planId":"G-1","payerTypeName":"PPO"}}`), "editor", t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Insurance{ProviderName: "Gold", PolicyNumber: "G-1", PayerType: "PPO"}
	if rec.Insurance == nil || *rec.Insurance != want {
		t.Errorf("insurance = %+v, want %+v", rec.Insurance, want)
	}
}

func TestMerge_Priority(t *testing.T) {
	rec, err := Merge(baseRecord(t), mustBody(t, `{"priority":"Normal"}`), "editor", t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.IsPinned {
		t.Error("priority Normal should unpin")
	}
	rec, _ = Merge(baseRecord(t), mustBody(t, `{"priority":"Normal","isPinned":true}`), "editor", t0)
	if !rec.IsPinned {
		t.Error("isPinned should take precedence over priority")
	}
}

func TestUpdatableFields_FixedOrder(t *testing.T) {
	names := UpdatableFields()
	if names[0] != "firstName" || names[len(names)-1] != "lastOrder" {
		t.Errorf("unexpected field order %v", names)
	}
}

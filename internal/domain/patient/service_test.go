package patient

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/mockserver/internal/platform/apierror"
	"github.com/ehr/mockserver/internal/platform/db"
)

// stepClock returns t0, t0+1s, t0+2s, ... on successive calls.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	store, err := db.OpenInMemory(context.Background())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(NewRepo(store), zerolog.Nop(), opts...)
}

func expectStatus(t *testing.T, err error, status int, errorCode string) {
	t.Helper()
	apiErr := apiError(t, err)
	if apiErr.Status != status {
		t.Errorf("status = %d, want %d (%v)", apiErr.Status, status, apiErr)
	}
	if errorCode != "" && apiErr.ErrorCode != errorCode {
		t.Errorf("errorCode = %s, want %s", apiErr.ErrorCode, errorCode)
	}
}

func TestService_CreatePatchDeleteScenario(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, WithClock(stepClock(t0)))

	created, err := svc.CreatePatient(ctx, Legacy, mustBody(t,
		`{"firstName":"Test","lastName":"Patient","insurance":{"providerName":"MockIns","policyNumber":"P123"}}`), "system")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Key == "" {
		t.Fatal("expected generated key")
	}
	if !created.Metadata.CreatedAt.Equal(t0) {
		t.Errorf("createdAt = %v, want %v", created.Metadata.CreatedAt, t0)
	}

	patched, err := svc.PatchPatient(ctx, created.Key, mustBody(t, `{"isPinned":true}`), "editor")
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if !patched.IsPinned {
		t.Error("expected isPinned=true after patch")
	}
	if !patched.Metadata.CreatedAt.Equal(created.Metadata.CreatedAt) || patched.Metadata.CreatedBy != "system" {
		t.Errorf("creation stamps changed: %+v", patched.Metadata)
	}
	if !patched.Metadata.UpdatedAt.After(created.Metadata.UpdatedAt) || patched.Metadata.UpdatedBy != "editor" {
		t.Errorf("update stamps not refreshed: %+v", patched.Metadata)
	}

	if err := svc.DeletePatient(ctx, created.Key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = svc.GetPatient(ctx, created.Key)
	expectStatus(t, err, http.StatusNotFound, apierror.ErrPatientNotFound)
}

func TestService_AuditImmutableAcrossWrites(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, WithClock(stepClock(t0)))

	rec, err := svc.CreatePatient(ctx, V1, mustBody(t,
		`{"patientId":"P-1","firstName":"Ann","lastName":"Lee","payer":{"planName":"Gold"}}`), "creator")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	prev := rec.Metadata.UpdatedAt
	bodies := []string{
		`{"phone":"555-0100"}`,
		`{"status":"DISCHARGED"}`,
		`{"team":{"name":"Oncology"}}`,
	}
	for _, b := range bodies {
		rec, err = svc.PatchPatient(ctx, "P-1", mustBody(t, b), "editor")
		if err != nil {
			t.Fatalf("patch %s: %v", b, err)
		}
		if !rec.Metadata.CreatedAt.Equal(t0) {
			t.Fatalf("createdAt moved to %v", rec.Metadata.CreatedAt)
		}
		if rec.Metadata.UpdatedAt.Before(prev) {
			t.Fatalf("updatedAt went backwards: %v < %v", rec.Metadata.UpdatedAt, prev)
		}
		prev = rec.Metadata.UpdatedAt
	}

	rec, err = svc.ReplacePatient(ctx, V1, "P-1", mustBody(t,
		`{"firstName":"Ann","lastName":"Lee-Smith","insurance":{"providerName":"Silver"}}`), "editor")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if !rec.Metadata.CreatedAt.Equal(t0) || rec.Metadata.CreatedBy != "creator" {
		t.Errorf("replace changed creation stamps: %+v", rec.Metadata)
	}
	if rec.LastName != "Lee-Smith" || rec.Phone != nil || rec.Status != StatusActive {
		t.Errorf("replace should reset omitted fields, got %+v", rec)
	}
}

func TestService_KeysAreNeverReused(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	body := `{"patientId":"P-9","firstName":"A","lastName":"B","insurance":{"providerName":"X"}}`

	if _, err := svc.CreatePatient(ctx, V1, mustBody(t, body), "x"); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.CreatePatient(ctx, Legacy, mustBody(t, body), "x")
	expectStatus(t, err, http.StatusConflict, apierror.ErrDuplicateKey)

	if err := svc.DeletePatient(ctx, "P-9"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = svc.CreatePatient(ctx, Legacy, mustBody(t, body), "x")
	expectStatus(t, err, http.StatusConflict, apierror.ErrDuplicateKey)
}

func TestService_DuplicateNameAndBirthDate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	first := `{"patientId":"A-1","firstName":"Ann","lastName":"Lee","teamName":"Cardio","dateOfBirth":"1980-04-02"}`
	second := `{"patientId":"A-2","firstName":"Ann","lastName":"Lee","teamName":"Neuro","dateOfBirth":"1980-04-02"}`

	if _, err := svc.CreatePatient(ctx, Admin, mustBody(t, first), "x"); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.CreatePatient(ctx, Admin, mustBody(t, second), "x")
	expectStatus(t, err, http.StatusConflict, apierror.ErrDuplicatePatient)

	// The legacy contract has no name+DOB safeguard.
	legacy := `{"patientId":"A-3","firstName":"Ann","lastName":"Lee","dateOfBirth":"1980-04-02","insurance":{"providerName":"X"}}`
	if _, err := svc.CreatePatient(ctx, Legacy, mustBody(t, legacy), "x"); err != nil {
		t.Errorf("legacy create should not check name+DOB: %v", err)
	}
}

func TestService_ValidationPrecedesMutation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	if _, err := svc.CreatePatient(ctx, V1, mustBody(t,
		`{"patientId":"P-1","firstName":"Ann","lastName":"Lee","insurance":{"providerName":"X"},"gender":"FEMALE"}`), "x"); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := svc.PatchPatient(ctx, "P-1", mustBody(t, `{"lastName":"Changed","gender":"robot"}`), "x")
	expectStatus(t, err, http.StatusBadRequest, apierror.ErrInvalidField)

	rec, err := svc.GetPatient(ctx, "P-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.LastName != "Lee" || deref(rec.Gender) != "FEMALE" {
		t.Errorf("rejected patch must not persist, got %s/%s", rec.LastName, deref(rec.Gender))
	}

	_, err = svc.PatchPatient(ctx, "missing", mustBody(t, `{"lastName":"X"}`), "x")
	expectStatus(t, err, http.StatusNotFound, apierror.ErrPatientNotFound)
}

func TestService_ListEmpty(t *testing.T) {
	svc := newTestService(t)
	res, err := svc.ListPatients(context.Background(), V1, Query{PageNo: "1", PageSize: "25"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	env := res.Envelope(V1.List)
	if env.TotalRecords != 0 || env.PagesCount != 0 || env.Items == nil || len(env.Items) != 0 {
		t.Errorf("unexpected empty envelope %+v", env)
	}
}

func TestService_HugePageNoReturnsEmptyPage(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	if _, err := NewSeeder(svc, 3).Seed(ctx, 3, "seeder"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := svc.ListPatients(ctx, Legacy, Query{PageNo: "9223372036854775807", PageSize: "2"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	env := res.Envelope(Legacy.List)
	if env.TotalRecords != 3 || len(env.Items) != 0 {
		t.Errorf("expected no items past the last page, got %d of %d", len(env.Items), env.TotalRecords)
	}

	_, err = svc.ListPatients(ctx, V1, Query{PageNo: "9223372036854775807", PageSize: "2"})
	expectStatus(t, err, http.StatusBadRequest, apierror.ErrInvalidQuery)
}

func TestService_PaginationCoversEveryRecord(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	created, err := NewSeeder(svc, 7).Seed(ctx, 23, "seeder")
	if err != nil || created != 23 {
		t.Fatalf("seed: created=%d err=%v", created, err)
	}

	for _, size := range []string{"1", "5", "10", "23", "25"} {
		seen := map[string]bool{}
		res, err := svc.ListPatients(ctx, V1, Query{PageSize: size, SortBy: "FIRST_NAME"})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		pages := res.Envelope(V1.List).PagesCount
		for page := 1; page <= pages; page++ {
			res, err := svc.ListPatients(ctx, V1, Query{PageSize: size, PageNo: strconv.Itoa(page), SortBy: "FIRST_NAME"})
			if err != nil {
				t.Fatalf("list page %d: %v", page, err)
			}
			if res.Total != 23 {
				t.Fatalf("total = %d on page %d", res.Total, page)
			}
			for _, r := range res.Records {
				if seen[r.Key] {
					t.Fatalf("pageSize=%s: key %s on two pages", size, r.Key)
				}
				seen[r.Key] = true
			}
		}
		if len(seen) != 23 {
			t.Errorf("pageSize=%s: pages covered %d records, want 23", size, len(seen))
		}
	}
}

func TestService_ListFilters(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	for _, b := range []string{
		`{"patientId":"F-1","firstName":"Ann","lastName":"Lee","insurance":{"providerName":"X"},"isPinned":true}`,
		`{"patientId":"F-2","firstName":"Bob","lastName":"Annesley","insurance":{"providerName":"X"},"status":"DISCHARGED"}`,
		`{"patientId":"F-3","firstName":"Cid","lastName":"Moe","insurance":{"providerName":"X"},"email":"cid@ann.org"}`,
		`{"patientId":"F-4","firstName":"Dee","lastName":"Poe","insurance":{"providerName":"X"}}`,
	} {
		if _, err := svc.CreatePatient(ctx, V1, mustBody(t, b), "x"); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"text matches any searchable field", Query{Text: "ANN", SortBy: "PATIENT_ID"}, []string{"F-1", "F-2", "F-3"}},
		{"display id", Query{Text: "f-4"}, []string{"F-4"}},
		{"pinned", Query{IsPinned: "true"}, []string{"F-1"}},
		{"status", Query{Status: "DISCHARGED"}, []string{"F-2"}},
		{"descending", Query{SortBy: "PATIENT_ID", SortDirection: "desc"}, []string{"F-4", "F-3", "F-2", "F-1"}},
		{"like wildcards are literal", Query{Text: "%"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.ListPatients(ctx, V1, tt.q)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			var got []string
			for _, r := range res.Records {
				got = append(got, r.DisplayID)
			}
			if len(got) != len(tt.want) || res.Total != len(tt.want) {
				t.Fatalf("got %v (total %d), want %v", got, res.Total, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestService_DeletePatientsPartial(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	if _, err := svc.CreatePatient(ctx, V1, mustBody(t,
		`{"patientId":"keyA","firstName":"A","lastName":"B","insurance":{"providerName":"X"}}`), "x"); err != nil {
		t.Fatalf("create: %v", err)
	}

	results, err := svc.DeletePatients(ctx, "acct-1", []string{"keyA", "keyB"})
	if err != nil {
		t.Fatalf("bulk delete: %v", err)
	}
	want := []DeleteResult{{"keyA", DeleteSuccess}, {"keyB", DeleteNotFound}}
	if len(results) != 2 || results[0] != want[0] || results[1] != want[1] {
		t.Errorf("results = %v, want %v", results, want)
	}
	_, err = svc.GetPatient(ctx, "keyA")
	expectStatus(t, err, http.StatusNotFound, "")
}

func TestService_SearchDelayHonorsCancellation(t *testing.T) {
	svc := newTestService(t, WithSearchDelay(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := svc.SearchPatients(ctx, "acct-1", Query{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("search delay ignored cancellation")
	}
}

func TestService_SearchUsesV1Rules(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.SearchPatients(context.Background(), "acct-1", Query{PageSize: "100"})
	expectStatus(t, err, http.StatusBadRequest, apierror.ErrInvalidQuery)
}

func TestService_ExportIgnoresPaging(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	if _, err := NewSeeder(svc, 3).Seed(ctx, 30, "seeder"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	records, err := svc.ExportPatients(ctx, Query{PageSize: "5"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(records) != 30 {
		t.Errorf("expected all 30 records, got %d", len(records))
	}
}

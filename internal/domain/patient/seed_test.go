package patient

import (
	"context"
	"testing"
)

func nextBody(t *testing.T, s *Seeder) Body {
	t.Helper()
	body, err := s.Body()
	if err != nil {
		t.Fatalf("generate body: %v", err)
	}
	return body
}

func TestSeeder_Deterministic(t *testing.T) {
	a, b := NewSeeder(nil, 42), NewSeeder(nil, 42)
	for i := 0; i < 5; i++ {
		ba, bb := nextBody(t, a), nextBody(t, b)
		if string(ba["patientId"]) != string(bb["patientId"]) || string(ba["insurance"]) != string(bb["insurance"]) {
			t.Fatalf("body %d differs between equal seeds", i)
		}
	}
	if string(nextBody(t, NewSeeder(nil, 1))["patientId"]) == string(nextBody(t, NewSeeder(nil, 2))["patientId"]) {
		t.Error("different seeds produced the same first id")
	}
}

func TestSeeder_BodiesSatisfyEveryVersion(t *testing.T) {
	s := NewSeeder(nil, 5)
	for i := 0; i < 20; i++ {
		body := nextBody(t, s)
		for _, v := range Versions {
			if _, err := Normalize(v, body, "seeder", t0); err != nil {
				t.Fatalf("%s rejected generated body: %v", v.Name, err)
			}
		}
	}
}

func TestSeeder_Seed(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	n, err := NewSeeder(svc, 9).Seed(ctx, 12, "seeder")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 12 {
		t.Errorf("created %d, want 12", n)
	}
	total, err := svc.CountPatients(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total != 12 {
		t.Errorf("store holds %d records, want 12", total)
	}
}

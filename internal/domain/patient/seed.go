package patient

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ehr/mockserver/internal/platform/apierror"
)

var (
	seedFirstNames = []string{"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael", "Linda",
		"David", "Elizabeth", "William", "Barbara", "Richard", "Susan", "Joseph", "Jessica", "Thomas", "Sarah"}
	seedLastNames = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
		"Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez", "Wilson", "Anderson", "Thomas", "Taylor"}
	seedTeams   = []string{"Cardiology", "Oncology", "Orthopedics", "Pediatrics", "Neurology", "General Medicine"}
	seedPayers  = []string{"Aetna", "Blue Cross Blue Shield", "Cigna", "UnitedHealthcare", "Humana", "Medicare"}
	seedKinds   = []string{"COMMERCIAL", "MEDICARE", "MEDICAID", "SELF_PAY"}
	seedCities  = []string{"Springfield", "Riverside", "Franklin", "Greenville", "Madison", "Clinton"}
	seedStreets = []string{"Main St", "Oak Ave", "Pine Rd", "Maple Dr", "Cedar Ln", "Elm St"}
	seedOrders  = []string{"CBC with differential", "Basic metabolic panel", "Chest X-ray", "MRI lumbar spine",
		"Lipid panel", "Physical therapy evaluation"}
	seedOrderStatus = []string{"PENDING", "COMPLETED", "IN_PROGRESS", "CANCELLED"}
	seedDiagnoses   = []string{"I10", "E11.9", "J45.909", "M54.5", "F41.1", "K21.9", "N39.0"}
)

// Seeder generates deterministic mock patients and stores them through the
// regular create path, so every invariant of a normal create holds.
type Seeder struct {
	svc *Service
	rng *rand.Rand
}

func NewSeeder(svc *Service, seed uint64) *Seeder {
	return &Seeder{svc: svc, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func pick[T any](rng *rand.Rand, vals []T) T {
	return vals[rng.IntN(len(vals))]
}

// Body returns the next generated create body.
func (s *Seeder) Body() (Body, error) {
	rng := s.rng
	first, last := pick(rng, seedFirstNames), pick(rng, seedLastNames)
	dob := fmt.Sprintf("%04d-%02d-%02d", 1935+rng.IntN(70), 1+rng.IntN(12), 1+rng.IntN(28))
	gender := "MALE"
	if rng.IntN(2) == 0 {
		gender = "FEMALE"
	}
	src := map[string]interface{}{
		"patientId":   fmt.Sprintf("PT-%06d", rng.IntN(1000000)),
		"firstName":   first,
		"lastName":    last,
		"dateOfBirth": dob,
		"gender":      gender,
		"phone":       fmt.Sprintf("555-%03d-%04d", rng.IntN(1000), rng.IntN(10000)),
		"email":       fmt.Sprintf("%s.%s%d@example.com", strings.ToLower(first), strings.ToLower(last), rng.IntN(100)),
		"address": map[string]string{
			"street":  fmt.Sprintf("%d %s", 100+rng.IntN(9900), pick(rng, seedStreets)),
			"city":    pick(rng, seedCities),
			"state":   "IL",
			"zip":     fmt.Sprintf("%05d", 60000+rng.IntN(2000)),
			"country": "US",
		},
		"roomNumber":     fmt.Sprintf("%d", 100+rng.IntN(400)),
		"bedNumber":      pick(rng, []string{"A", "B"}),
		"status":         pick(rng, Statuses),
		"isPinned":       rng.IntN(5) == 0,
		"team":           pick(rng, seedTeams),
		"diagnosisCodes": []string{pick(rng, seedDiagnoses)},
		"insurance": map[string]string{
			"providerName": pick(rng, seedPayers),
			"policyNumber": fmt.Sprintf("POL%07d", rng.IntN(10000000)),
			"groupNumber":  fmt.Sprintf("GRP%04d", rng.IntN(10000)),
			"payerType":    pick(rng, seedKinds),
		},
	}
	if rng.IntN(3) > 0 {
		src["lastOrder"] = map[string]string{
			"orderNumber": fmt.Sprintf("ORD-%06d", rng.IntN(1000000)),
			"status":      pick(rng, seedOrderStatus),
			"orderDate":   fmt.Sprintf("2024-%02d-%02d", 1+rng.IntN(12), 1+rng.IntN(28)),
			"displayText": pick(rng, seedOrders),
		}
	}

	body := make(Body, len(src))
	for k, v := range src {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("seed field %s: %w", k, err)
		}
		body[k] = raw
	}
	return body, nil
}

// Seed creates n patients. Generated ids that collide with existing or
// deleted keys are skipped and regenerated.
func (s *Seeder) Seed(ctx context.Context, n int, actor string) (int, error) {
	created := 0
	for attempts := 0; created < n && attempts < n*5; attempts++ {
		body, err := s.Body()
		if err != nil {
			return created, err
		}
		_, err = s.svc.CreatePatient(ctx, Legacy, body, actor)
		var apiErr *apierror.Error
		switch {
		case err == nil:
			created++
		case errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict:
			continue
		default:
			return created, err
		}
	}
	return created, nil
}

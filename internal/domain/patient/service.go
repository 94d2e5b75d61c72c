package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/mockserver/internal/platform/apierror"
	"github.com/ehr/mockserver/pkg/pagination"
)

const (
	DeleteSuccess  = "SUCCESS"
	DeleteNotFound = "NOT_FOUND"
)

type Service struct {
	repo        Repository
	logger      zerolog.Logger
	now         func() time.Time
	searchDelay time.Duration
}

type Option func(*Service)

// WithSearchDelay makes account searches wait d before querying.
func WithSearchDelay(d time.Duration) Option {
	return func(s *Service) { s.searchDelay = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: logger,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is one page of records plus the total matching count.
type Result struct {
	Records []*Record
	Total   int
	Page    pagination.Params
}

// Envelope projects the page in shape.
func (r *Result) Envelope(shape Shape) pagination.Page[interface{}] {
	return pagination.NewPage(ProjectAll(shape, r.Records), r.Total, r.Page)
}

type DeleteResult struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

func (s *Service) storeError(op string, err error) error {
	s.logger.Error().Err(err).Str("op", op).Msg("patient store failure")
	return apierror.Internal(err)
}

func notFound(key string) error {
	return apierror.NotFound(apierror.ErrPatientNotFound, fmt.Sprintf("patient %q not found", key))
}

func (s *Service) ListPatients(ctx context.Context, v *Version, q Query) (*Result, error) {
	plan, err := v.Plan(q)
	if err != nil {
		return nil, err
	}
	return s.search(ctx, plan)
}

// SearchPatients serves the account-scoped search. The account id is
// accepted for logging only.
func (s *Service) SearchPatients(ctx context.Context, accountID string, q Query) (*Result, error) {
	plan, err := AccountSearch.Plan(q)
	if err != nil {
		return nil, err
	}
	if s.searchDelay > 0 {
		t := time.NewTimer(s.searchDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	s.logger.Debug().Str("account_id", accountID).Str("q", q.Text).Msg("account patient search")
	return s.search(ctx, plan)
}

// ExportPatients returns every record matching q under the v1 rules,
// ignoring the page window.
func (s *Service) ExportPatients(ctx context.Context, q Query) ([]*Record, error) {
	plan, err := V1.Plan(q)
	if err != nil {
		return nil, err
	}
	plan.Page = pagination.Params{}
	res, err := s.search(ctx, plan)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

func (s *Service) search(ctx context.Context, plan Plan) (*Result, error) {
	records, total, err := s.repo.Search(ctx, plan)
	if err != nil {
		return nil, s.storeError("search", err)
	}
	return &Result{Records: records, Total: total, Page: plan.Page}, nil
}

func (s *Service) GetPatient(ctx context.Context, key string) (*Record, error) {
	rec, err := s.repo.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, s.storeError("get", err)
	}
	return rec, nil
}

func (s *Service) CreatePatient(ctx context.Context, v *Version, body Body, actor string) (*Record, error) {
	rec, err := Normalize(v, body, actor, s.now())
	if err != nil {
		return nil, err
	}

	if v.CheckDuplicate && rec.DateOfBirth != nil {
		dup, err := s.repo.FindByIdentity(ctx, rec.FirstName, rec.LastName, *rec.DateOfBirth)
		switch {
		case err == nil:
			return nil, apierror.Conflict(apierror.ErrDuplicatePatient, fmt.Sprintf(
				"patient %s %s born %s already exists as %q", rec.FirstName, rec.LastName, *rec.DateOfBirth, dup.DisplayID))
		case !errors.Is(err, ErrNotFound):
			return nil, s.storeError("find by identity", err)
		}
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return nil, apierror.Conflict(apierror.ErrDuplicateKey, fmt.Sprintf("patient key %q already in use", rec.Key))
		}
		return nil, s.storeError("create", err)
	}
	s.logger.Debug().Str("key", rec.Key).Str("version", v.Name).Str("actor", actor).Msg("patient created")
	return s.GetPatient(ctx, rec.Key)
}

func (s *Service) ReplacePatient(ctx context.Context, v *Version, key string, body Body, actor string) (*Record, error) {
	existing, err := s.GetPatient(ctx, key)
	if err != nil {
		return nil, err
	}
	rec, err := Replace(v, existing, body, actor, s.now())
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, "replace", rec)
}

func (s *Service) PatchPatient(ctx context.Context, key string, body Body, actor string) (*Record, error) {
	existing, err := s.GetPatient(ctx, key)
	if err != nil {
		return nil, err
	}
	rec, err := Merge(existing, body, actor, s.now())
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, "patch", rec)
}

// persist writes rec and reads it back for the response.
func (s *Service) persist(ctx context.Context, op string, rec *Record) (*Record, error) {
	if err := s.repo.Update(ctx, rec); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound(rec.Key)
		}
		return nil, s.storeError(op, err)
	}
	s.logger.Debug().Str("key", rec.Key).Str("actor", rec.Metadata.UpdatedBy).Msg("patient " + op)
	return s.GetPatient(ctx, rec.Key)
}

func (s *Service) DeletePatient(ctx context.Context, key string) error {
	err := s.repo.Delete(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return notFound(key)
	}
	if err != nil {
		return s.storeError("delete", err)
	}
	s.logger.Debug().Str("key", key).Msg("patient deleted")
	return nil
}

// DeletePatients deletes each key on its own. Unknown keys are reported,
// not treated as a failure of the batch.
func (s *Service) DeletePatients(ctx context.Context, accountID string, keys []string) ([]DeleteResult, error) {
	results := make([]DeleteResult, 0, len(keys))
	for _, key := range keys {
		err := s.repo.Delete(ctx, key)
		switch {
		case err == nil:
			results = append(results, DeleteResult{Key: key, Status: DeleteSuccess})
		case errors.Is(err, ErrNotFound):
			results = append(results, DeleteResult{Key: key, Status: DeleteNotFound})
		default:
			return nil, s.storeError("bulk delete", err)
		}
	}
	s.logger.Debug().Str("account_id", accountID).Int("keys", len(keys)).Msg("patients bulk deleted")
	return results, nil
}

// CountPatients reports how many live records the store holds.
func (s *Service) CountPatients(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, s.storeError("count", err)
	}
	return n, nil
}

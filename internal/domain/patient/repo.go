package patient

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("patient not found")
	ErrDuplicateKey = errors.New("patient key already in use")
)

// Repository is the record store. Keys are never reused: Create fails with
// ErrDuplicateKey for a live or a deleted key.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, key string) (*Record, error)
	FindByIdentity(ctx context.Context, firstName, lastName, dateOfBirth string) (*Record, error)
	Search(ctx context.Context, p Plan) ([]*Record, int, error)
	Update(ctx context.Context, r *Record) error
	Delete(ctx context.Context, key string) error
	Count(ctx context.Context) (int, error)
}

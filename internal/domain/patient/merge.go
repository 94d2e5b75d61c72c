package patient

import (
	"strings"
	"time"

	"github.com/ehr/mockserver/internal/platform/apierror"
)

// Merge applies a PATCH body to a copy of existing. Only fields present in
// the body are touched, so an explicit null or false still applies. Nothing
// is returned unless every supplied field is valid.
func Merge(existing *Record, body Body, actor string, now time.Time) (*Record, error) {
	r := existing.Clone()
	st := newApplyState()
	if n := applyFields(r, body, st); n == 0 {
		return nil, apierror.Validation(apierror.ErrNoUpdatableFields, "no updatable fields supplied",
			"updatable fields: "+strings.Join(UpdatableFields(), ", "))
	}
	if err := st.err(); err != nil {
		return nil, err
	}
	touch(&r.Metadata, actor, now)
	return r, nil
}

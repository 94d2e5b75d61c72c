package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/mockserver/internal/platform/apierror"
)

// identifierFields carry a caller-chosen display id, which also becomes the
// record key on create.
var identifierFields = []string{"patientId", "id"}

// reservedKeys are static path segments beside /:key; a record with one of
// these keys could never be fetched by GET.
var reservedKeys = map[string]bool{"export": true}

// missing returns one message per unsatisfied required group. Names in
// implied count as present.
func (v *Version) missing(body Body, implied map[string]bool) []string {
	var out []string
	for _, group := range v.Required {
		satisfied := false
		for _, name := range group {
			if implied[name] || body.hasValue(name) {
				satisfied = true
				break
			}
		}
		if satisfied {
			continue
		}
		if len(group) == 1 {
			out = append(out, group[0]+" is required")
		} else {
			out = append(out, "one of "+strings.Join(group, ", ")+" is required")
		}
	}
	return out
}

// displayID reads the caller-supplied identifier, if any.
func displayID(body Body, st *applyState) string {
	name, raw, ok := body.lookup(identifierFields...)
	if !ok {
		return ""
	}
	s, _, valid := decodeString(raw)
	if !valid {
		st.fail("%s must be a string", name)
		return ""
	}
	return s
}

// Normalize turns a create body into a new record under v's rules. A
// supplied patientId (or id) becomes the key; otherwise a UUID is generated.
func Normalize(v *Version, body Body, actor string, now time.Time) (*Record, error) {
	if missing := v.missing(body, nil); len(missing) > 0 {
		return nil, apierror.Validation(apierror.ErrMissingRequiredFields, "missing required fields", missing...)
	}

	r := &Record{Status: StatusActive}
	st := newApplyState()
	applyFields(r, body, st)
	id := displayID(body, st)
	if reservedKeys[id] {
		st.fail("patientId %q is reserved", id)
	}
	if err := st.err(); err != nil {
		return nil, err
	}

	if id == "" {
		id = uuid.NewString()
	}
	r.Key = id
	r.DisplayID = id
	r.Metadata = Metadata{CreatedAt: now, CreatedBy: actor, UpdatedAt: now, UpdatedBy: actor}
	return r, nil
}

// Replace builds the full replacement of existing from a PUT body. The key
// and creation stamps are kept; every other field takes the body's value or
// its zero/default.
func Replace(v *Version, existing *Record, body Body, actor string, now time.Time) (*Record, error) {
	implied := map[string]bool{}
	for _, n := range identifierFields {
		implied[n] = true
	}
	if missing := v.missing(body, implied); len(missing) > 0 {
		return nil, apierror.Validation(apierror.ErrMissingRequiredFields, "missing required fields", missing...)
	}

	r := &Record{
		Key:       existing.Key,
		DisplayID: existing.DisplayID,
		Status:    StatusActive,
		Metadata:  existing.Metadata,
	}
	st := newApplyState()
	applyFields(r, body, st)
	if id := displayID(body, st); id != "" {
		r.DisplayID = id
	}
	if err := st.err(); err != nil {
		return nil, err
	}
	touch(&r.Metadata, actor, now)
	return r, nil
}

// touch refreshes the update stamps without ever moving updatedAt before
// createdAt.
func touch(m *Metadata, actor string, now time.Time) {
	if now.Before(m.CreatedAt) {
		now = m.CreatedAt
	}
	m.UpdatedAt = now
	m.UpdatedBy = actor
}

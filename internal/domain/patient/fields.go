package patient

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/ehr/mockserver/internal/platform/apierror"
)

// Body is a decoded JSON object body. Keeping raw values lets writes tell
// an absent field from an explicit null or false.
type Body map[string]json.RawMessage

// ParseBody decodes data, which must be a JSON object.
func ParseBody(data []byte) (Body, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, apierror.Validation(apierror.ErrInvalidField, "request body must be a JSON object")
	}
	var b Body
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, apierror.Validation(apierror.ErrInvalidField, "request body must be a JSON object", err.Error())
	}
	if b == nil {
		return nil, apierror.Validation(apierror.ErrInvalidField, "request body must be a JSON object")
	}
	return b, nil
}

// lookup returns the first of names present in the body.
func (b Body) lookup(names ...string) (string, json.RawMessage, bool) {
	for _, n := range names {
		if raw, ok := b[n]; ok {
			return n, raw, true
		}
	}
	return "", nil, false
}

// hasValue reports whether name carries something other than null or an
// empty string, object or array.
func (b Body) hasValue(name string) bool {
	raw, ok := b[name]
	if !ok {
		return false
	}
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", `""`, "{}", "[]":
		return false
	}
	return true
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || string(t) == "null"
}

// decodeString accepts a JSON string or number literal.
func decodeString(raw json.RawMessage) (val string, null bool, ok bool) {
	t := bytes.TrimSpace(raw)
	switch {
	case isNull(t):
		return "", true, true
	case t[0] == '"':
		var s string
		if err := json.Unmarshal(t, &s); err != nil {
			return "", false, false
		}
		return strings.TrimSpace(s), false, true
	case t[0] == '-' || (t[0] >= '0' && t[0] <= '9'):
		return string(t), false, true
	}
	return "", false, false
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("simple_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	return v
}

// applyState collects issues and remembers which fields one body touched,
// so aliases of the same value do not overwrite each other.
type applyState struct {
	touched map[string]bool
	issues  []string
}

func newApplyState() *applyState {
	return &applyState{touched: map[string]bool{}}
}

func (st *applyState) fail(format string, args ...interface{}) {
	st.issues = append(st.issues, fmt.Sprintf(format, args...))
}

func (st *applyState) err() error {
	if len(st.issues) == 0 {
		return nil
	}
	return apierror.Validation(apierror.ErrInvalidField, "invalid field values", st.issues...)
}

type setter func(r *Record, name string, raw json.RawMessage, st *applyState)

// field is one updatable body field. names[0] is canonical; the rest are
// accepted aliases.
type field struct {
	names []string
	set   setter
}

// fields is the full write table, applied in this order on create, replace
// and patch. Identifiers and metadata are not in it.
var fields = []field{
	{[]string{"firstName"}, requiredString(func(r *Record) *string { return &r.FirstName })},
	{[]string{"lastName"}, requiredString(func(r *Record) *string { return &r.LastName })},
	{[]string{"dateOfBirth", "dob"}, optionalString(func(r *Record) **string { return &r.DateOfBirth })},
	{[]string{"gender"}, setGender},
	{[]string{"phone"}, optionalString(func(r *Record) **string { return &r.Phone })},
	{[]string{"email"}, setEmail},
	{[]string{"address"}, setAddress},
	{[]string{"roomNumber"}, optionalString(func(r *Record) **string { return &r.RoomNumber })},
	{[]string{"bedNumber"}, optionalString(func(r *Record) **string { return &r.BedNumber })},
	{[]string{"admissionDate"}, optionalString(func(r *Record) **string { return &r.AdmissionDate })},
	{[]string{"dischargeDate"}, optionalString(func(r *Record) **string { return &r.DischargeDate })},
	{[]string{"primaryPhysician"}, optionalString(func(r *Record) **string { return &r.PrimaryPhysician })},
	{[]string{"diagnosisCodes"}, setDiagnosisCodes},
	{[]string{"payerType"}, optionalString(func(r *Record) **string { return &r.PayerType })},
	{[]string{"insurance"}, setCoverage},
	{[]string{"payer"}, setCoverage},
	{[]string{"primaryPayer"}, setCoverage},
	{[]string{"status"}, setStatus},
	{[]string{"isPinned"}, setPinned},
	{[]string{"priority"}, setPriority},
	{[]string{"team"}, setTeam},
	{[]string{"teamName"}, setTeamName},
	{[]string{"agency"}, setAgency},
	{[]string{"lastOrder"}, setLastOrder},
}

// UpdatableFields lists the canonical names of the write table.
func UpdatableFields() []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.names[0]
	}
	return names
}

// applyFields runs every field present in body against r and returns how
// many were supplied.
func applyFields(r *Record, body Body, st *applyState) int {
	n := 0
	for _, f := range fields {
		name, raw, ok := body.lookup(f.names...)
		if !ok {
			continue
		}
		n++
		f.set(r, name, raw, st)
	}
	return n
}

func requiredString(dst func(*Record) *string) setter {
	return func(r *Record, name string, raw json.RawMessage, st *applyState) {
		s, null, ok := decodeString(raw)
		if !ok || null || s == "" {
			st.fail("%s must be a non-empty string", name)
			return
		}
		*dst(r) = s
	}
}

func optionalString(dst func(*Record) **string) setter {
	return func(r *Record, name string, raw json.RawMessage, st *applyState) {
		s, null, ok := decodeString(raw)
		switch {
		case !ok:
			st.fail("%s must be a string", name)
		case null || s == "":
			*dst(r) = nil
		default:
			*dst(r) = &s
		}
	}
}

func setGender(r *Record, name string, raw json.RawMessage, st *applyState) {
	s, null, ok := decodeString(raw)
	if ok && (null || s == "") {
		r.Gender = nil
		return
	}
	g := strings.ToUpper(s)
	if !ok || validate.Var(g, "oneof="+strings.Join(Genders, " ")) != nil {
		st.fail("%s must be one of %s", name, strings.Join(Genders, ", "))
		return
	}
	r.Gender = &g
}

func setStatus(r *Record, name string, raw json.RawMessage, st *applyState) {
	s, _, ok := decodeString(raw)
	status := strings.ToUpper(s)
	if !ok || status == "" || validate.Var(status, "oneof="+strings.Join(Statuses, " ")) != nil {
		st.fail("%s must be one of %s", name, strings.Join(Statuses, ", "))
		return
	}
	r.Status = status
}

func setEmail(r *Record, name string, raw json.RawMessage, st *applyState) {
	s, null, ok := decodeString(raw)
	switch {
	case !ok:
		st.fail("%s must be a string", name)
	case null || s == "":
		r.Email = nil
	case validate.Var(s, "simple_email") != nil:
		st.fail("%s must be a valid email address", name)
	default:
		r.Email = &s
	}
}

func setAddress(r *Record, name string, raw json.RawMessage, st *applyState) {
	if isNull(raw) {
		r.Address = nil
		return
	}
	var a Address
	if err := json.Unmarshal(raw, &a); err != nil {
		st.fail("%s must be an object with street, city, state, zip, country", name)
		return
	}
	if a == (Address{}) {
		r.Address = nil
		return
	}
	r.Address = &a
}

func setDiagnosisCodes(r *Record, name string, raw json.RawMessage, st *applyState) {
	if isNull(raw) {
		r.DiagnosisCodes = nil
		return
	}
	var codes []string
	if err := json.Unmarshal(raw, &codes); err != nil {
		st.fail("%s must be an array of strings", name)
		return
	}
	r.DiagnosisCodes = codes
}

// coverageInput accepts the insurance, payer and primaryPayer shapes.
type coverageInput struct {
	ProviderName  string `json:"providerName"`
	PolicyNumber  string `json:"policyNumber"`
	GroupNumber   string `json:"groupNumber"`
	PayerID       string `json:"payerId"`
	PayerType     string `json:"payerType"`
	PayerTypeName string `json:"payerTypeName"`
	PlanName      string `json:"planName"`
	PlanID        string `json:"planId"`
	DisplayName   string `json:"displayName"`
}

func (in coverageInput) insurance() *Insurance {
	ins := &Insurance{
		ProviderName: firstNonEmpty(in.ProviderName, in.PlanName, in.DisplayName),
		PolicyNumber: firstNonEmpty(in.PolicyNumber, in.PlanID),
		GroupNumber:  strings.TrimSpace(in.GroupNumber),
		PayerID:      strings.TrimSpace(in.PayerID),
		PayerType:    firstNonEmpty(in.PayerTypeName, in.PayerType),
	}
	if ins.empty() {
		return nil
	}
	return ins
}

// setCoverage stores any payer shape as Insurance. When one body carries
// several shapes the first in table order wins and later ones only fill
// blanks.
func setCoverage(r *Record, name string, raw json.RawMessage, st *applyState) {
	merging := st.touched["coverage"]
	st.touched["coverage"] = true
	if isNull(raw) {
		if !merging {
			r.Insurance = nil
		}
		return
	}
	var in coverageInput
	if err := json.Unmarshal(raw, &in); err != nil {
		st.fail("%s must be an object", name)
		return
	}
	ins := in.insurance()
	if !merging || r.Insurance == nil {
		r.Insurance = ins
		return
	}
	if ins == nil {
		return
	}
	cur := r.Insurance
	cur.ProviderName = firstNonEmpty(cur.ProviderName, ins.ProviderName)
	cur.PolicyNumber = firstNonEmpty(cur.PolicyNumber, ins.PolicyNumber)
	cur.GroupNumber = firstNonEmpty(cur.GroupNumber, ins.GroupNumber)
	cur.PayerID = firstNonEmpty(cur.PayerID, ins.PayerID)
	cur.PayerType = firstNonEmpty(cur.PayerType, ins.PayerType)
}

func setPinned(r *Record, name string, raw json.RawMessage, st *applyState) {
	st.touched["isPinned"] = true
	if isNull(raw) {
		r.IsPinned = false
		return
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		r.IsPinned = b
		return
	}
	if s, _, ok := decodeString(raw); ok {
		if b, ok := parseBool(s); ok {
			r.IsPinned = b
			return
		}
	}
	st.fail("%s must be a boolean", name)
}

// setPriority maps "Pinned"/"Normal" onto isPinned unless isPinned was sent.
func setPriority(r *Record, name string, raw json.RawMessage, st *applyState) {
	if st.touched["isPinned"] {
		return
	}
	s, null, ok := decodeString(raw)
	switch {
	case ok && null:
		r.IsPinned = false
	case ok && strings.EqualFold(s, "Pinned"):
		r.IsPinned = true
	case ok && strings.EqualFold(s, "Normal"):
		r.IsPinned = false
	default:
		st.fail("%s must be Pinned or Normal", name)
	}
}

func setTeam(r *Record, name string, raw json.RawMessage, st *applyState) {
	st.touched["team"] = true
	if s, null, ok := decodeString(raw); ok {
		if null {
			r.Team = nil
		} else {
			r.Team = NewTeam("", s)
		}
		return
	}
	var t Team
	if err := json.Unmarshal(raw, &t); err != nil {
		st.fail("%s must be a string or an object with teamId and name", name)
		return
	}
	r.Team = NewTeam(t.TeamID, t.Name)
}

func setTeamName(r *Record, name string, raw json.RawMessage, st *applyState) {
	if st.touched["team"] {
		return
	}
	s, null, ok := decodeString(raw)
	switch {
	case !ok:
		st.fail("%s must be a string", name)
	case null:
		r.Team = nil
	default:
		r.Team = NewTeam("", s)
	}
}

func setAgency(r *Record, name string, raw json.RawMessage, st *applyState) {
	if isNull(raw) {
		r.Agency = nil
		return
	}
	var a map[string]interface{}
	if err := json.Unmarshal(raw, &a); err != nil {
		st.fail("%s must be an object", name)
		return
	}
	r.Agency = a
}

func setLastOrder(r *Record, name string, raw json.RawMessage, st *applyState) {
	if isNull(raw) {
		r.LastOrder = nil
		return
	}
	var o Order
	if err := json.Unmarshal(raw, &o); err != nil {
		st.fail("%s must be an object with orderNumber, status, orderDate, displayText", name)
		return
	}
	if o == (Order{}) {
		r.LastOrder = nil
		return
	}
	r.LastOrder = &o
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

package patient

import (
	"regexp"
	"time"
)

// UnknownPayerID is reported when a record has coverage but no payer id.
const UnknownPayerID = "payer-unknown"

// ListItem is the v1 list shape.
type ListItem struct {
	PatientKey   string        `json:"patientKey"`
	PatientID    string        `json:"patientId"`
	FirstName    string        `json:"firstName"`
	LastName     string        `json:"lastName"`
	DateOfBirth  *string       `json:"dateOfBirth"`
	Priority     string        `json:"priority"`
	Team         *Team         `json:"team"`
	PrimaryPayer *PrimaryPayer `json:"primaryPayer"`
	LastOrder    *Order        `json:"lastOrder"`
}

type PrimaryPayer struct {
	PayerID     string `json:"payerId"`
	PayerType   string `json:"payerType"`
	DisplayName string `json:"displayName"`
}

// SearchItem is the account search and admin list shape.
type SearchItem struct {
	PatientID string  `json:"patientId"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	DOB       *string `json:"dob"`
	Team      *string `json:"team"`
	IsPinned  bool    `json:"isPinned"`
	LastOrder *Order  `json:"lastOrder"`
	Payer     *Payer  `json:"payer"`
}

type Payer struct {
	PayerTypeName string `json:"payerTypeName"`
	PlanName      string `json:"planName"`
	PlanID        string `json:"planId"`
	GroupNumber   string `json:"groupNumber"`
}

// FlatRecord is the stored record passed through as is, with the key and
// timestamps also surfaced at the top level.
type FlatRecord struct {
	Record
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Project renders r in the named shape.
func Project(shape Shape, r *Record) interface{} {
	switch shape {
	case ShapeListItem:
		return ToListItem(r)
	case ShapeSearch:
		return ToSearchItem(r)
	default:
		return ToFlat(r)
	}
}

// ProjectAll renders every record in the named shape.
func ProjectAll(shape Shape, records []*Record) []interface{} {
	out := make([]interface{}, len(records))
	for i, r := range records {
		out[i] = Project(shape, r)
	}
	return out
}

func ToListItem(r *Record) ListItem {
	priority := "Normal"
	if r.IsPinned {
		priority = "Pinned"
	}
	return ListItem{
		PatientKey:   r.Key,
		PatientID:    r.DisplayID,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		DateOfBirth:  cloneString(r.DateOfBirth),
		Priority:     priority,
		Team:         copyTeam(r.Team),
		PrimaryPayer: primaryPayer(r),
		LastOrder:    copyOrder(r.LastOrder),
	}
}

func ToSearchItem(r *Record) SearchItem {
	item := SearchItem{
		PatientID: r.DisplayID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		IsPinned:  r.IsPinned,
		Payer:     payer(r),
	}
	if r.DateOfBirth != nil {
		dob := displayDate(*r.DateOfBirth)
		item.DOB = &dob
	}
	if r.Team != nil {
		name := r.Team.Name
		item.Team = &name
	}
	if r.LastOrder != nil {
		o := *r.LastOrder
		o.OrderDate = displayDate(o.OrderDate)
		item.LastOrder = &o
	}
	return item
}

func ToFlat(r *Record) FlatRecord {
	return FlatRecord{
		Record:    *r.Clone(),
		ID:        r.Key,
		CreatedAt: r.Metadata.CreatedAt,
		UpdatedAt: r.Metadata.UpdatedAt,
	}
}

// payerType prefers the coverage's own type over the record label.
func payerType(r *Record) string {
	if r.Insurance != nil && r.Insurance.PayerType != "" {
		return r.Insurance.PayerType
	}
	return deref(r.PayerType)
}

func primaryPayer(r *Record) *PrimaryPayer {
	if r.Insurance == nil && r.PayerType == nil {
		return nil
	}
	p := &PrimaryPayer{PayerID: UnknownPayerID, PayerType: payerType(r)}
	if r.Insurance != nil {
		if r.Insurance.PayerID != "" {
			p.PayerID = r.Insurance.PayerID
		}
		p.DisplayName = r.Insurance.ProviderName
	}
	return p
}

func payer(r *Record) *Payer {
	if r.Insurance == nil && r.PayerType == nil {
		return nil
	}
	p := &Payer{PayerTypeName: payerType(r)}
	if r.Insurance != nil {
		p.PlanName = r.Insurance.ProviderName
		p.PlanID = r.Insurance.PolicyNumber
		p.GroupNumber = r.Insurance.GroupNumber
	}
	return p
}

func copyTeam(t *Team) *Team {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyOrder(o *Order) *Order {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

// isoDate matches a YYYY-MM-DD date, optionally followed by a time part.
var isoDate = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})(?:[T ].*)?$`)

// displayDate rewrites YYYY-MM-DD as MM/DD/YYYY and drops any time part.
// Anything else is returned unchanged.
func displayDate(s string) string {
	m := isoDate.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	return m[2] + "/" + m[3] + "/" + m[1]
}

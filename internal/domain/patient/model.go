package patient

import (
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive     = "ACTIVE"
	StatusDischarged = "DISCHARGED"
	StatusPending    = "PENDING"
)

var (
	Statuses = []string{StatusActive, StatusDischarged, StatusPending}
	Genders  = []string{"MALE", "FEMALE", "OTHER"}
)

// Record is the canonical stored patient. Every response shape is a
// projection of it.
type Record struct {
	Key              string                 `json:"patientKey"`
	DisplayID        string                 `json:"patientId"`
	FirstName        string                 `json:"firstName"`
	LastName         string                 `json:"lastName"`
	DateOfBirth      *string                `json:"dateOfBirth"`
	Gender           *string                `json:"gender"`
	Phone            *string                `json:"phone"`
	Email            *string                `json:"email"`
	Address          *Address               `json:"address"`
	RoomNumber       *string                `json:"roomNumber"`
	BedNumber        *string                `json:"bedNumber"`
	AdmissionDate    *string                `json:"admissionDate"`
	DischargeDate    *string                `json:"dischargeDate"`
	PrimaryPhysician *string                `json:"primaryPhysician"`
	DiagnosisCodes   []string               `json:"diagnosisCodes"`
	PayerType        *string                `json:"payerType"`
	Insurance        *Insurance             `json:"insurance"`
	Status           string                 `json:"status"`
	IsPinned         bool                   `json:"isPinned"`
	Team             *Team                  `json:"team"`
	Agency           map[string]interface{} `json:"agency"`
	LastOrder        *Order                 `json:"lastOrder"`
	Metadata         Metadata               `json:"metadata"`
}

type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

// Insurance is stored in one shape. Payer and primaryPayer bodies are
// converted into it on write and rebuilt from it on read.
type Insurance struct {
	ProviderName string `json:"providerName,omitempty"`
	PolicyNumber string `json:"policyNumber,omitempty"`
	GroupNumber  string `json:"groupNumber,omitempty"`
	PayerID      string `json:"payerId,omitempty"`
	PayerType    string `json:"payerType,omitempty"`
}

func (i *Insurance) empty() bool {
	return i == nil || *i == (Insurance{})
}

type Team struct {
	TeamID string `json:"teamId"`
	Name   string `json:"name"`
}

type Order struct {
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
	OrderDate   string `json:"orderDate"`
	DisplayText string `json:"displayText"`
}

// Metadata holds the audit stamps. Created* never change after insert.
type Metadata struct {
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy"`
}

// TeamName returns the team name or "" when the record has no team.
func (r *Record) TeamName() string {
	if r.Team == nil {
		return ""
	}
	return r.Team.Name
}

// Clone returns a deep copy so that a merge can be discarded on failure.
func (r *Record) Clone() *Record {
	c := *r
	c.DateOfBirth = cloneString(r.DateOfBirth)
	c.Gender = cloneString(r.Gender)
	c.Phone = cloneString(r.Phone)
	c.Email = cloneString(r.Email)
	c.RoomNumber = cloneString(r.RoomNumber)
	c.BedNumber = cloneString(r.BedNumber)
	c.AdmissionDate = cloneString(r.AdmissionDate)
	c.DischargeDate = cloneString(r.DischargeDate)
	c.PrimaryPhysician = cloneString(r.PrimaryPhysician)
	c.PayerType = cloneString(r.PayerType)
	if r.Address != nil {
		a := *r.Address
		c.Address = &a
	}
	if r.Insurance != nil {
		i := *r.Insurance
		c.Insurance = &i
	}
	if r.Team != nil {
		t := *r.Team
		c.Team = &t
	}
	if r.LastOrder != nil {
		o := *r.LastOrder
		c.LastOrder = &o
	}
	if r.DiagnosisCodes != nil {
		c.DiagnosisCodes = append([]string(nil), r.DiagnosisCodes...)
	}
	if r.Agency != nil {
		c.Agency = maps.Clone(r.Agency)
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// teamNamespace scopes synthesized team ids.
var teamNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:mock-server:team"))

// NewTeam builds a team, deriving a stable teamId from the name when none
// is given.
func NewTeam(teamID, name string) *Team {
	teamID, name = strings.TrimSpace(teamID), strings.TrimSpace(name)
	if teamID == "" && name == "" {
		return nil
	}
	if teamID == "" {
		teamID = "team-" + uuid.NewSHA1(teamNamespace, []byte(strings.ToLower(name))).String()[:8]
	}
	return &Team{TeamID: teamID, Name: name}
}

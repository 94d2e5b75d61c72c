package patient

import (
	"maps"
	"slices"
	"strings"
)

// Shape names a response projection.
type Shape int

const (
	ShapeFlat Shape = iota
	ShapeListItem
	ShapeSearch
)

func (s Shape) String() string {
	switch s {
	case ShapeListItem:
		return "list-item"
	case ShapeSearch:
		return "search"
	default:
		return "flat"
	}
}

// Version is one named API contract for the patients resource. Handlers,
// planner, normalizer and projector read their rules from it instead of
// branching per route.
type Version struct {
	Name     string
	BasePath string

	// Required lists body field groups; each group is satisfied by any one
	// of its names carrying a non-empty value.
	Required [][]string

	Strict          bool
	DefaultPageSize int
	MaxPageSize     int

	// Sorts maps accepted sortBy values to columns. Lookup is
	// case-insensitive.
	Sorts       map[string]string
	DefaultSort string

	CheckDuplicate bool

	List   Shape
	Detail Shape
}

// sortColumn resolves sortBy through the allow-list.
func (v *Version) sortColumn(sortBy string) (string, bool) {
	for name, col := range v.Sorts {
		if strings.EqualFold(name, sortBy) {
			return col, true
		}
	}
	return "", false
}

func (v *Version) sortNames() []string {
	return slices.Sorted(maps.Keys(v.Sorts))
}

var (
	Legacy = &Version{
		Name:     "legacy",
		BasePath: "/api/patients",
		Required: [][]string{
			{"firstName"},
			{"lastName"},
			{"insurance", "payer", "primaryPayer"},
		},
		Strict:          false,
		DefaultPageSize: 10,
		MaxPageSize:     100,
		Sorts: map[string]string{
			"firstName":   "first_name",
			"lastName":    "last_name",
			"id":          "patient_key",
			"dateOfBirth": "date_of_birth",
			"createdAt":   "created_at",
		},
		DefaultSort: "last_name",
		List:        ShapeFlat,
		Detail:      ShapeFlat,
	}

	Admin = &Version{
		Name:     "admin",
		BasePath: "/api/v1/admin/patients",
		Required: [][]string{
			{"firstName"},
			{"lastName"},
			{"patientId"},
			{"teamName", "team"},
			{"dateOfBirth", "dob"},
		},
		Strict:          true,
		DefaultPageSize: 10,
		MaxPageSize:     100,
		Sorts: map[string]string{
			"firstName": "first_name",
			"lastName":  "last_name",
			"patientId": "display_id",
			"team":      "team_name",
		},
		DefaultSort:    "last_name",
		CheckDuplicate: true,
		List:           ShapeSearch,
		Detail:         ShapeFlat,
	}

	V1 = &Version{
		Name:     "v1",
		BasePath: "/api/v1/patients",
		Required: [][]string{
			{"patientId", "id"},
			{"firstName"},
			{"lastName"},
			{"payer", "insurance", "primaryPayer"},
		},
		Strict:          true,
		DefaultPageSize: 25,
		MaxPageSize:     25,
		Sorts: map[string]string{
			"LAST_NAME":  "last_name",
			"FIRST_NAME": "first_name",
			"TEAM":       "team_name",
			"ADDRESS":    "address",
			"PATIENT_ID": "display_id",
		},
		DefaultSort:    "last_name",
		CheckDuplicate: true,
		List:           ShapeListItem,
		Detail:         ShapeFlat,
	}

	// AccountSearch serves the account-scoped search endpoint: v1 query
	// rules, search-shaped items.
	AccountSearch = &Version{
		Name:            "account-search",
		Strict:          V1.Strict,
		DefaultPageSize: V1.DefaultPageSize,
		MaxPageSize:     V1.MaxPageSize,
		Sorts:           V1.Sorts,
		DefaultSort:     V1.DefaultSort,
		List:            ShapeSearch,
		Detail:          ShapeSearch,
	}
)

// Versions are the contracts mounted under their own base paths.
var Versions = []*Version{Legacy, Admin, V1}

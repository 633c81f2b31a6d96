package merge

import (
	"errors"
	"fmt"
	"strings"
)

// Field names one mergeable part of a document.
type Field int

const (
	FieldFullName Field = iota + 1
	FieldSummary
	FieldContact
	FieldHardSkills
	FieldSoftSkills
	FieldCertifications
	FieldExperience
	FieldEducation
	FieldProjects
)

var fieldNames = map[Field]string{
	FieldFullName:       "full_name",
	FieldSummary:        "summary",
	FieldContact:        "contact",
	FieldHardSkills:     "hard_skills",
	FieldSoftSkills:     "soft_skills",
	FieldCertifications: "certifications",
	FieldExperience:     "experience",
	FieldEducation:      "education",
	FieldProjects:       "projects",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// Strategy is how a selected field folds the patch into the document.
type Strategy int

const (
	// Replace overwrites a scalar or struct value.
	Replace Strategy = iota + 1
	// Union adds proposed set members that are not already present.
	Union
	// ReplaceList swaps the whole ordered list.
	ReplaceList
	// ReplaceAt swaps a single entry of an ordered list.
	ReplaceAt
)

// Selector picks the field a merge applies to. The zero Selector is invalid;
// build one with the constructors below or ParseSelector.
type Selector struct {
	field  Field
	index  int
	single bool
}

func FullName() Selector       { return Selector{field: FieldFullName} }
func Summary() Selector        { return Selector{field: FieldSummary} }
func Contact() Selector        { return Selector{field: FieldContact} }
func HardSkills() Selector     { return Selector{field: FieldHardSkills} }
func SoftSkills() Selector     { return Selector{field: FieldSoftSkills} }
func Certifications() Selector { return Selector{field: FieldCertifications} }
func AllExperience() Selector  { return Selector{field: FieldExperience} }
func AllEducation() Selector   { return Selector{field: FieldEducation} }
func AllProjects() Selector    { return Selector{field: FieldProjects} }

func ExperienceAt(i int) Selector { return Selector{field: FieldExperience, index: i, single: true} }
func EducationAt(i int) Selector  { return Selector{field: FieldEducation, index: i, single: true} }
func ProjectAt(i int) Selector    { return Selector{field: FieldProjects, index: i, single: true} }

// Field returns the selected field.
func (s Selector) Field() Field { return s.field }

// Index returns the list position for single-entry selectors.
func (s Selector) Index() (int, bool) { return s.index, s.single }

// Strategy returns the merge rule carried by the selector.
func (s Selector) Strategy() Strategy {
	switch s.field {
	case FieldFullName, FieldSummary, FieldContact:
		return Replace
	case FieldHardSkills, FieldSoftSkills, FieldCertifications:
		return Union
	case FieldExperience, FieldEducation, FieldProjects:
		if s.single {
			return ReplaceAt
		}
		return ReplaceList
	}
	return 0
}

// Valid reports whether the selector was built by a constructor.
func (s Selector) Valid() bool {
	return s.Strategy() != 0
}

func (s Selector) String() string {
	if s.single {
		return fmt.Sprintf("%s[%d]", s.field, s.index)
	}
	return s.field.String()
}

// ErrUnknownField is returned by ParseSelector for unsupported names.
var ErrUnknownField = errors.New("unknown field")

var fieldAliases = map[string]Field{
	"full_name":            FieldFullName,
	"fullname":             FieldFullName,
	"summary":              FieldSummary,
	"professional_summary": FieldSummary,
	"contact":              FieldContact,
	"contact_info":         FieldContact,
	"hard_skills":          FieldHardSkills,
	"hardskills":           FieldHardSkills,
	"soft_skills":          FieldSoftSkills,
	"softskills":           FieldSoftSkills,
	"certifications":       FieldCertifications,
	"experience":           FieldExperience,
	"work_experience":      FieldExperience,
	"education":            FieldEducation,
	"projects":             FieldProjects,
}

// ParseSelector maps a wire field name plus optional list index to a Selector.
// An index is only accepted for list fields.
func ParseSelector(field string, index *int) (Selector, error) {
	f, ok := fieldAliases[strings.ToLower(strings.TrimSpace(field))]
	if !ok {
		return Selector{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if index == nil {
		return Selector{field: f}, nil
	}
	switch f {
	case FieldExperience, FieldEducation, FieldProjects:
	default:
		return Selector{}, fmt.Errorf("field %s does not take an index", f)
	}
	if *index < 0 {
		return Selector{}, fmt.Errorf("index must be non-negative, got %d", *index)
	}
	return Selector{field: f, index: *index, single: true}, nil
}

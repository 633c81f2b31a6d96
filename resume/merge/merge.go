// Package merge folds AI-proposed content into an editable CV draft.
//
// Merge never writes through its inputs. The output shares every untouched
// slice with the input document, and any field it changes gets a fresh slice,
// so callers must treat documents as immutable values.
package merge

import (
	"reflect"
	"slices"
	"strings"

	"supercv-backend/resume/model"
)

// Merge applies the part of patch chosen by sel to doc and returns the result.
// Zero values in patch mean nothing was proposed and leave doc unchanged, as do
// out-of-range list indexes and invalid selectors.
func Merge(doc, patch model.Document, sel Selector) model.Document {
	out := doc
	switch sel.field {
	case FieldFullName:
		if patch.FullName != "" {
			out.FullName = patch.FullName
		}
	case FieldSummary:
		if patch.Summary != "" {
			out.Summary = patch.Summary
		}
	case FieldContact:
		if !patch.Contact.IsZero() {
			out.Contact = patch.Contact
		}
	case FieldHardSkills:
		out.HardSkills = union(doc.HardSkills, patch.HardSkills)
	case FieldSoftSkills:
		out.SoftSkills = union(doc.SoftSkills, patch.SoftSkills)
	case FieldCertifications:
		out.Certifications = union(doc.Certifications, patch.Certifications)
	case FieldExperience:
		out.Experience = replaceList(doc.Experience, patch.Experience, sel)
	case FieldEducation:
		out.Education = replaceList(doc.Education, patch.Education, sel)
	case FieldProjects:
		out.Projects = replaceList(doc.Projects, patch.Projects, sel)
	}
	return out
}

// HasSuggestion reports whether merging patch under sel would change doc.
func HasSuggestion(doc, patch model.Document, sel Selector) bool {
	return !reflect.DeepEqual(Merge(doc, patch, sel), doc)
}

// NewSkills returns the proposed entries missing from current, in proposal
// order, compared case-insensitively.
func NewSkills(current, proposed []string) []string {
	seen := make(map[string]struct{}, len(current)+len(proposed))
	for _, s := range current {
		seen[skillKey(s)] = struct{}{}
	}
	var out []string
	for _, s := range proposed {
		key := skillKey(s)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

// union returns the case-insensitive set of current and proposed skills,
// keeping the first spelling seen and the original order. An empty proposal
// leaves current as is, and so does a proposal that adds nothing to a list
// that already holds no duplicates.
func union(current, proposed []string) []string {
	if len(proposed) == 0 {
		return current
	}
	seen := make(map[string]struct{}, len(current))
	out := make([]string, 0, len(current)+len(proposed))
	for _, s := range current {
		key := skillKey(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	added := NewSkills(out, proposed)
	if len(added) == 0 && len(out) == len(current) {
		return current
	}
	return append(out, added...)
}

func replaceList[T any](current, proposed []T, sel Selector) []T {
	i, single := sel.Index()
	if !single {
		if len(proposed) == 0 {
			return current
		}
		return slices.Clone(proposed)
	}
	if i < 0 || i >= len(current) || i >= len(proposed) {
		return current
	}
	out := slices.Clone(current)
	out[i] = proposed[i]
	return out
}

func skillKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

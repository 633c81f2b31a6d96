package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supercv-backend/resume/model"
)

func baseDoc() model.Document {
	return model.Document{
		FullName:   "Ada Lovelace",
		Summary:    "Engineer.",
		Contact:    model.Contact{Email: "ada@example.com"},
		HardSkills: []string{"Go"},
		SoftSkills: []string{"Mentoring"},
		Experience: []model.Experience{
			{Title: "Engineer", Company: "Analytical Engines", Achievements: []string{"Built the mill"}},
			{Title: "Intern", Company: "Babbage & Co"},
		},
		Education: []model.Education{{Institution: "Home", Degree: "Mathematics"}},
		Projects:  []model.Project{{Name: "Notes", Description: "Bernoulli numbers"}},
	}
}

func TestMergeSkillUnionIsOrderIndependent(t *testing.T) {
	doc := baseDoc()
	patch := model.Document{HardSkills: []string{"Go", "SQL"}}

	out := Merge(doc, patch, HardSkills())
	assert.ElementsMatch(t, []string{"Go", "SQL"}, out.HardSkills)
	assert.Equal(t, []string{"Go"}, doc.HardSkills, "input must not change")
}

func TestMergeSkillUnionNeverDropsASkill(t *testing.T) {
	doc := baseDoc()
	doc.HardSkills = []string{"Go", "Kubernetes"}
	out := Merge(doc, model.Document{HardSkills: []string{"GO"}}, HardSkills())
	assert.Equal(t, doc.HardSkills, out.HardSkills)

	out = Merge(doc, model.Document{HardSkills: []string{" Terraform ", "terraform", ""}}, HardSkills())
	assert.Equal(t, []string{"Go", "Kubernetes", "Terraform"}, out.HardSkills)
}

func TestMergeSkillUnionCollapsesExistingDuplicates(t *testing.T) {
	doc := baseDoc()
	doc.HardSkills = []string{"Go", "Go", "go", "Kubernetes"}

	out := Merge(doc, model.Document{HardSkills: []string{"SQL"}}, HardSkills())
	assert.Equal(t, []string{"Go", "Kubernetes", "SQL"}, out.HardSkills)
	assert.Equal(t, []string{"Go", "Go", "go", "Kubernetes"}, doc.HardSkills, "input must not change")

	out = Merge(doc, model.Document{HardSkills: []string{"go"}}, HardSkills())
	assert.Equal(t, []string{"Go", "Kubernetes"}, out.HardSkills)

	out = Merge(doc, model.Document{}, HardSkills())
	assert.Equal(t, doc.HardSkills, out.HardSkills)
}

func TestMergeIsIdempotent(t *testing.T) {
	doc := baseDoc()
	patch := model.Document{
		FullName:       "Ada King",
		Summary:        "Pioneer of computing.",
		Contact:        model.Contact{Email: "ada@king.example", Phone: "+44"},
		HardSkills:     []string{"SQL", "Go"},
		SoftSkills:     []string{"Writing"},
		Certifications: []string{"Royal Society"},
		Experience: []model.Experience{
			{Title: "Lead Engineer", Company: "Analytical Engines"},
			{Title: "Research Intern", Company: "Babbage & Co"},
		},
		Education: []model.Education{{Institution: "Home", Degree: "Mathematics and Logic"}},
		Projects:  []model.Project{{Name: "Notes G", Description: "First program"}},
	}
	selectors := []Selector{
		FullName(), Summary(), Contact(), HardSkills(), SoftSkills(), Certifications(),
		AllExperience(), ExperienceAt(1), AllEducation(), EducationAt(0), AllProjects(), ProjectAt(0),
	}
	for _, sel := range selectors {
		t.Run(sel.String(), func(t *testing.T) {
			once := Merge(doc, patch, sel)
			twice := Merge(once, patch, sel)
			assert.Equal(t, once, twice)
			assert.False(t, HasSuggestion(once, patch, sel))
		})
	}
}

func TestMergeScalarReplacement(t *testing.T) {
	doc := baseDoc()
	out := Merge(doc, model.Document{Summary: "Pioneer."}, Summary())
	assert.Equal(t, "Pioneer.", out.Summary)
	assert.Equal(t, "Engineer.", doc.Summary)
	assert.Equal(t, doc.FullName, out.FullName)
}

func TestMergeIdenticalScalarIsNoop(t *testing.T) {
	doc := baseDoc()
	patch := model.Document{Summary: doc.Summary}
	assert.Equal(t, doc, Merge(doc, patch, Summary()))
	assert.False(t, HasSuggestion(doc, patch, Summary()))
	assert.True(t, HasSuggestion(doc, model.Document{Summary: "Other"}, Summary()))
}

func TestMergeEmptyPatchFieldIsNoop(t *testing.T) {
	doc := baseDoc()
	for _, sel := range []Selector{FullName(), Summary(), Contact(), AllExperience(), HardSkills()} {
		assert.Equal(t, doc, Merge(doc, model.Document{}, sel), sel.String())
	}
}

func TestMergeSingleIndexReplacementCopiesOnWrite(t *testing.T) {
	doc := baseDoc()
	patch := model.Document{Experience: []model.Experience{
		{Title: "ignored"},
		{Title: "Research Intern", Company: "Babbage & Co"},
	}}

	out := Merge(doc, patch, ExperienceAt(1))
	require.Len(t, out.Experience, 2)
	assert.Equal(t, "Engineer", out.Experience[0].Title)
	assert.Equal(t, "Research Intern", out.Experience[1].Title)
	assert.Equal(t, "Intern", doc.Experience[1].Title, "input list must not change")

	// Untouched lists are shared, touched ones are not.
	assert.Same(t, &doc.Education[0], &out.Education[0])
	assert.NotSame(t, &doc.Experience[0], &out.Experience[0])
}

func TestMergeOutOfRangeIndexIsNoop(t *testing.T) {
	doc := baseDoc()
	patch := model.Document{Projects: []model.Project{{Name: "A"}, {Name: "B"}, {Name: "C"}}}
	assert.Equal(t, doc, Merge(doc, patch, ProjectAt(2)))
	assert.Equal(t, doc, Merge(doc, patch, ProjectAt(-1)))
}

func TestMergeWholeListReplacement(t *testing.T) {
	doc := baseDoc()
	patch := model.Document{Education: []model.Education{{Institution: "Cambridge"}, {Institution: "London"}}}
	out := Merge(doc, patch, AllEducation())
	assert.Equal(t, patch.Education, out.Education)

	out.Education[0].Institution = "changed"
	assert.Equal(t, "Cambridge", patch.Education[0].Institution, "patch must not alias output")
}

func TestMergeInvalidSelectorIsNoop(t *testing.T) {
	doc := baseDoc()
	assert.Equal(t, doc, Merge(doc, model.Document{Summary: "x"}, Selector{}))
	assert.False(t, Selector{}.Valid())
}

func TestNewSkillsReturnsDeltaOnly(t *testing.T) {
	got := NewSkills([]string{"Go", "SQL"}, []string{"sql", "Docker", "docker", "Go", "Rust"})
	assert.Equal(t, []string{"Docker", "Rust"}, got)
	assert.Empty(t, NewSkills([]string{"Go"}, []string{"go"}))
}

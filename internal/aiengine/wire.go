package aiengine

import (
	"sort"
	"strings"

	"supercv-backend/internal/analyses"
	"supercv-backend/resume/model"
)

type contactWire struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Location  string `json:"location"`
	LinkedIn  string `json:"linkedin"`
	Portfolio string `json:"portfolio"`
}

type experienceWire struct {
	Title        string   `json:"title"`
	Company      string   `json:"company"`
	Dates        string   `json:"dates"`
	Location     string   `json:"location"`
	Achievements []string `json:"achievements"`
}

type educationWire struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree"`
	Year        string `json:"year"`
	Location    string `json:"location"`
}

type projectWire struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Highlights   []string `json:"highlights"`
	Technologies []string `json:"technologies"`
}

// cvWire is the engine's snake_case CV shape.
type cvWire struct {
	FullName       string           `json:"full_name"`
	Summary        string           `json:"professional_summary"`
	Contact        contactWire      `json:"contact_info"`
	HardSkills     []string         `json:"hard_skills"`
	SoftSkills     []string         `json:"soft_skills"`
	Experience     []experienceWire `json:"work_experience"`
	Education      []educationWire  `json:"education"`
	Projects       []projectWire    `json:"projects"`
	Certifications []string         `json:"certifications"`
}

type gapWire struct {
	Gap    string `json:"gap"`
	Action string `json:"action"`
}

type analyzeResponse struct {
	Analysis map[string]any `json:"analysis"`
	CVData   *cvWire        `json:"cv_data"`
}

func (w cvWire) document() model.Document {
	doc := model.Document{
		FullName: strings.TrimSpace(w.FullName),
		Summary:  strings.TrimSpace(w.Summary),
		Contact: model.Contact{
			Email:     w.Contact.Email,
			Phone:     w.Contact.Phone,
			Location:  w.Contact.Location,
			LinkedIn:  w.Contact.LinkedIn,
			Portfolio: w.Contact.Portfolio,
		},
		HardSkills:     w.HardSkills,
		SoftSkills:     w.SoftSkills,
		Certifications: w.Certifications,
	}
	for _, e := range w.Experience {
		doc.Experience = append(doc.Experience, model.Experience{
			Title:        e.Title,
			Company:      e.Company,
			Dates:        e.Dates,
			Location:     e.Location,
			Achievements: e.Achievements,
		})
	}
	for _, e := range w.Education {
		doc.Education = append(doc.Education, model.Education{
			Institution: e.Institution,
			Degree:      e.Degree,
			Year:        e.Year,
			Location:    e.Location,
		})
	}
	for _, p := range w.Projects {
		doc.Projects = append(doc.Projects, model.Project{
			Name:         p.Name,
			Description:  p.Description,
			Highlights:   p.Highlights,
			Technologies: p.Technologies,
		})
	}
	return doc
}

// payload splits the free-form analysis object into scores, text details and
// lists. Keys ending in _score become scores clamped to 0..100.
func (r analyzeResponse) payload() analyses.ResultPayload {
	out := analyses.ResultPayload{
		Scores: make(map[string]int),
		Detail: make(map[string]string),
		Lists:  make(map[string][]string),
	}
	keys := make([]string, 0, len(r.Analysis))
	for k := range r.Analysis {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		switch v := r.Analysis[key].(type) {
		case float64:
			if strings.HasSuffix(key, "_score") {
				out.Scores[strings.TrimSuffix(key, "_score")] = clampScore(v)
			}
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out.Detail[key] = s
			}
		case []any:
			out.Lists[key] = flattenList(v)
		}
	}
	if r.CVData != nil {
		doc := r.CVData.document()
		out.Document = &doc
	}
	return out
}

func flattenList(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			gap, _ := v["gap"].(string)
			action, _ := v["action"].(string)
			g := gapWire{Gap: strings.TrimSpace(gap), Action: strings.TrimSpace(action)}
			switch {
			case g.Gap != "" && g.Action != "":
				out = append(out, g.Gap+": "+g.Action)
			case g.Gap != "":
				out = append(out, g.Gap)
			}
		}
	}
	return out
}

func clampScore(value float64) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return int(value + 0.5)
}

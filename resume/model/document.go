package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Document is the editable CV draft.
type Document struct {
	FullName       string       `json:"fullName"`
	Summary        string       `json:"summary"`
	Contact        Contact      `json:"contact"`
	HardSkills     []string     `json:"hardSkills"`
	SoftSkills     []string     `json:"softSkills"`
	Experience     []Experience `json:"experience"`
	Education      []Education  `json:"education"`
	Projects       []Project    `json:"projects"`
	Certifications []string     `json:"certifications,omitempty"`
}

// Contact captures top-of-CV contact details.
type Contact struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Location  string `json:"location"`
	LinkedIn  string `json:"linkedin,omitempty"`
	Portfolio string `json:"portfolio,omitempty"`
}

// IsZero reports whether no contact field is set.
func (c Contact) IsZero() bool {
	return c == Contact{}
}

// Experience represents a work history entry.
type Experience struct {
	Title        string   `json:"title"`
	Company      string   `json:"company"`
	Dates        string   `json:"dates"`
	Location     string   `json:"location,omitempty"`
	Achievements []string `json:"achievements"`
}

// Education represents an education entry.
type Education struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree"`
	Year        string `json:"year"`
	Location    string `json:"location,omitempty"`
}

// Project represents a notable project.
type Project struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Highlights   []string `json:"highlights"`
	Technologies []string `json:"technologies,omitempty"`
}

// Validate enforces the minimum shape of a persisted draft.
func (d Document) Validate() error {
	if strings.TrimSpace(d.FullName) == "" {
		return errors.New("fullName is required")
	}
	if d.Contact.LinkedIn != "" && !isFullURL(d.Contact.LinkedIn) {
		return errors.New("contact.linkedin must be a full URL")
	}
	if d.Contact.Portfolio != "" && !isFullURL(d.Contact.Portfolio) {
		return errors.New("contact.portfolio must be a full URL")
	}
	for i, exp := range d.Experience {
		if strings.TrimSpace(exp.Title) == "" && strings.TrimSpace(exp.Company) == "" {
			return fmt.Errorf("experience[%d] needs a title or company", i)
		}
	}
	for i, edu := range d.Education {
		if strings.TrimSpace(edu.Institution) == "" {
			return fmt.Errorf("education[%d].institution is required", i)
		}
	}
	for i, p := range d.Projects {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("projects[%d].name is required", i)
		}
	}
	return nil
}

func isFullURL(value string) bool {
	parsed, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}

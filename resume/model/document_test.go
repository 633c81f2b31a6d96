package model

import "testing"

func TestValidateRequiresFullName(t *testing.T) {
	if err := (Document{}).Validate(); err == nil {
		t.Fatalf("expected error for missing name")
	}
	if err := (Document{FullName: "Ada Lovelace"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsRelativeLinks(t *testing.T) {
	doc := Document{FullName: "Ada", Contact: Contact{LinkedIn: "linkedin.com/in/ada"}}
	if err := doc.Validate(); err == nil {
		t.Fatalf("expected error for non-URL linkedin")
	}
	doc.Contact.LinkedIn = "https://linkedin.com/in/ada"
	if err := doc.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateListEntries(t *testing.T) {
	doc := Document{FullName: "Ada", Education: []Education{{Degree: "BSc"}}}
	if err := doc.Validate(); err == nil {
		t.Fatalf("expected error for education without institution")
	}
}

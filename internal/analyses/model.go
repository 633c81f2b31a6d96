package analyses

import (
	"time"

	"supercv-backend/resume/model"
)

// Status is the lifecycle state of an analysis record.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobContext is the optional job description supplied with a submission.
type JobContext struct {
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Empty reports whether neither text nor URL was supplied.
func (j JobContext) Empty() bool {
	return j.Text == "" && j.URL == ""
}

// ResultPayload is what the worker attaches on completion.
type ResultPayload struct {
	Scores   map[string]int      `json:"scores,omitempty"`
	Detail   map[string]string   `json:"detail,omitempty"`
	Lists    map[string][]string `json:"lists,omitempty"`
	Document *model.Document     `json:"document,omitempty"`
	AIDraft  *model.Document     `json:"aiDraft,omitempty"`
}

// Customization tracks the follow-up AI pass requested on a completed record.
// It never changes the record's top-level status.
type Customization struct {
	Mode          Mode      `json:"mode"`
	State         Status    `json:"state"`
	RequestedAt   time.Time `json:"requestedAt"`
	FailureReason string    `json:"failureReason,omitempty"`
}

// Record is one submitted document and its analysis job.
type Record struct {
	ID            string         `json:"id"`
	OwnerID       *string        `json:"ownerId,omitempty"`
	ClaimToken    string         `json:"-"`
	Status        Status         `json:"status"`
	InputRef      string         `json:"inputRef"`
	JobContext    JobContext     `json:"jobContext"`
	Result        *ResultPayload `json:"result,omitempty"`
	FailureReason string         `json:"failureReason,omitempty"`
	Customization *Customization `json:"customization,omitempty"`
	StartedAt     *time.Time     `json:"startedAt,omitempty"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Anonymous reports whether the record has no owner yet.
func (r Record) Anonymous() bool {
	return r.OwnerID == nil
}

// OwnedBy reports whether accountID owns the record.
func (r Record) OwnedBy(accountID string) bool {
	return r.OwnerID != nil && *r.OwnerID == accountID
}

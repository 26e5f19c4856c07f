package domain

import (
	"context"
	"time"
)

// Status is a request's position in the review workflow.
type Status string

const (
	StatusDraft                Status = "draft"
	StatusSubmitted            Status = "submitted"
	StatusRequirementsAnalysis Status = "requirements_analysis"
	StatusPlanning             Status = "planning"
	StatusEstimation           Status = "estimation"
	StatusProposalReady        Status = "proposal_ready"
	StatusApproved             Status = "approved"
	StatusRejected             Status = "rejected"
	StatusInDevelopment        Status = "in_development"
	StatusCompleted            Status = "completed"
	StatusCanceled             Status = "canceled"

	// Legacy values still present in older records.
	StatusInProcess Status = "in_process"
	StatusInReview  Status = "in_review"
)

var statusLabels = map[Status]string{
	StatusDraft:                "Borrador",
	StatusSubmitted:            "Enviado",
	StatusRequirementsAnalysis: "Análisis de requerimientos",
	StatusPlanning:             "Planificación",
	StatusEstimation:           "Estimación",
	StatusProposalReady:        "Propuesta lista",
	StatusApproved:             "Aprobado",
	StatusRejected:             "Rechazado",
	StatusInDevelopment:        "En desarrollo",
	StatusCompleted:            "Completado",
	StatusCanceled:             "Cancelado",
	StatusInProcess:            "En proceso",
	StatusInReview:             "En revisión",
}

// Valid reports whether s is a recognised status.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the display name, or the raw value for unknown statuses.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Statuses lists every recognised status.
func Statuses() []Status {
	out := make([]Status, 0, len(statusLabels))
	for s := range statusLabels {
		out = append(out, s)
	}
	return out
}

// Request is a client-submitted work item. Comments, Files and StatusHistory are
// append-only and ordered by insertion.
type Request struct {
	ID             string
	Title          string
	Description    string
	ProjectType    string
	Priority       string
	Budget         *float64
	Timeframe      string
	BusinessGoals  string
	TargetAudience string
	AdditionalInfo string
	Status         Status
	ClientID       string
	AssignedTo     *string
	Progress       int
	Comments       []Comment
	Files          []AttachedFile
	StatusHistory  []StatusChange
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type AttachedFile struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Filename    string    `json:"filename"`
	StoragePath string    `json:"storagePath"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// StatusChange is one immutable history entry. FromStatus is nil only for the
// entry written at creation.
type StatusChange struct {
	FromStatus *Status   `json:"fromStatus"`
	ToStatus   Status    `json:"toStatus"`
	ChangedBy  string    `json:"changedBy"`
	ChangedAt  time.Time `json:"changedAt"`
	Reason     *string   `json:"reason,omitempty"`
}

// RequestFilter narrows List. Empty fields are not applied.
type RequestFilter struct {
	ClientID string
	Status   Status
	Search   string
	Skip     int
	Limit    int
}

// RequestPatch holds the fields an update may touch. Nil means unchanged.
type RequestPatch struct {
	Title          *string
	Description    *string
	ProjectType    *string
	Priority       *string
	Budget         *float64
	Timeframe      *string
	BusinessGoals  *string
	TargetAudience *string
	AdditionalInfo *string
	Progress       *int
	Status         *Status
	AssignedTo     *string
}

// Empty reports whether the patch changes nothing.
func (p RequestPatch) Empty() bool {
	return p == RequestPatch{}
}

// RequestRepository defines data access for requests. Every append is a single
// atomic statement against the stored document.
type RequestRepository interface {
	Create(ctx context.Context, req *Request) error
	GetByID(ctx context.Context, id string) (*Request, error)
	List(ctx context.Context, filter RequestFilter) ([]*Request, int, error)
	// Update applies patch and, when change is non-nil, appends it to the history.
	Update(ctx context.Context, id string, patch RequestPatch, change *StatusChange, at time.Time) error
	AppendStatus(ctx context.Context, id string, change StatusChange) error
	AppendComment(ctx context.Context, id string, comment Comment) error
	AppendFile(ctx context.Context, id string, file AttachedFile) error
	Delete(ctx context.Context, id string) error
}

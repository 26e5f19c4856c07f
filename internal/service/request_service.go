package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/domain"
	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/storage"
	"github.com/aryan0dhankhar/requestdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/requestdesk/internal/observability/tracing"
	"github.com/aryan0dhankhar/requestdesk/internal/security"
	"github.com/aryan0dhankhar/requestdesk/internal/security/audit"
)

// History reasons written by the service itself.
const (
	ReasonCreated   = "Creación de la solicitud"
	ReasonViaUpdate = "Cambio de estado vía PUT"
	ReasonSubmitted = "Solicitud enviada para revisión"
)

const (
	defaultRequestLimit = 10
	maxRequestLimit     = 100
	maxCommentLength    = 5000
)

var validPriorities = map[string]bool{"low": true, "medium": true, "high": true, "urgent": true}

// Notifier is the best-effort notification sink used after a mutation commits.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind domain.NotificationType, title, message string, data map[string]any) bool
	NotifyAdmins(ctx context.Context, excludeUserID string, kind domain.NotificationType, title, message string, data map[string]any) int
}

// RequestService implements the request workflow: creation, review,
// status transitions, comments and attachments.
type RequestService struct {
	requests       domain.RequestRepository
	users          domain.UserRepository
	notifier       Notifier
	blobs          storage.Store
	authz          *security.AuthorizationService
	audit          *audit.Logger
	logger         *slog.Logger
	maxUploadBytes int64
	now            func() time.Time
}

func NewRequestService(
	requests domain.RequestRepository,
	users domain.UserRepository,
	notifier Notifier,
	blobs storage.Store,
	authz *security.AuthorizationService,
	auditLog *audit.Logger,
	maxUploadBytes int64,
	logger *slog.Logger,
) *RequestService {
	if logger == nil {
		logger = slog.Default()
	}
	if authz == nil {
		authz = security.NewAuthorizationService(logger)
	}
	return &RequestService{
		requests:       requests,
		users:          users,
		notifier:       notifier,
		blobs:          blobs,
		authz:          authz,
		audit:          auditLog,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequestInput is the body of POST /api/requests.
type CreateRequestInput struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	ProjectType    string   `json:"projectType"`
	Priority       string   `json:"priority"`
	Budget         *float64 `json:"budget"`
	Timeframe      string   `json:"timeframe"`
	BusinessGoals  string   `json:"businessGoals"`
	TargetAudience string   `json:"targetAudience"`
	AdditionalInfo string   `json:"additionalInfo"`
}

// UpdateRequestInput is the body of PUT /api/requests/{id}. Nil means unchanged.
type UpdateRequestInput struct {
	Title          *string  `json:"title"`
	Description    *string  `json:"description"`
	ProjectType    *string  `json:"projectType"`
	Priority       *string  `json:"priority"`
	Budget         *float64 `json:"budget"`
	Timeframe      *string  `json:"timeframe"`
	BusinessGoals  *string  `json:"businessGoals"`
	TargetAudience *string  `json:"targetAudience"`
	AdditionalInfo *string  `json:"additionalInfo"`
	Progress       *int     `json:"progress"`
	Status         *string  `json:"status"`
	AssignedTo     *string  `json:"assignedTo"`
}

// ListRequestsInput carries the query parameters of GET /api/requests.
type ListRequestsInput struct {
	Status   string
	ClientID string
	Search   string
	Skip     int
	Limit    int
}

type RequestSummary struct {
	ID             string              `json:"id"`
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Status         domain.Status       `json:"status"`
	StatusLabel    string              `json:"statusLabel"`
	ProjectType    string              `json:"projectType"`
	Priority       string              `json:"priority"`
	ClientID       string              `json:"clientId"`
	Client         *domain.UserSummary `json:"client"`
	AssignedTo     *string             `json:"assignedTo"`
	AssignedAdmin  *domain.UserSummary `json:"assignedAdmin"`
	Budget         *float64            `json:"budget"`
	Timeframe      string              `json:"timeframe"`
	BusinessGoals  string              `json:"businessGoals"`
	TargetAudience string              `json:"targetAudience"`
	AdditionalInfo string              `json:"additionalInfo"`
	Progress       int                 `json:"progress"`
	CommentsCount  int                 `json:"commentsCount"`
	FilesCount     int                 `json:"filesCount"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

type CommentView struct {
	domain.Comment
	User *domain.UserSummary `json:"user"`
}

type FileView struct {
	domain.AttachedFile
	DownloadURL string              `json:"downloadUrl"`
	User        *domain.UserSummary `json:"user"`
}

type StatusChangeView struct {
	domain.StatusChange
	FromStatusLabel *string             `json:"fromStatusLabel"`
	ToStatusLabel   string              `json:"toStatusLabel"`
	ChangedByUser   *domain.UserSummary `json:"changedByUser"`
}

type RequestDetail struct {
	RequestSummary
	Comments      []CommentView      `json:"comments"`
	Files         []FileView         `json:"files"`
	StatusHistory []StatusChangeView `json:"statusHistory"`
}

type RequestPage struct {
	Success  bool             `json:"success"`
	Total    int              `json:"total"`
	Skip     int              `json:"skip"`
	Limit    int              `json:"limit"`
	Requests []RequestSummary `json:"requests"`
}

// Create persists a draft request with its genesis history entry, then tells
// every admin about it.
func (s *RequestService) Create(ctx context.Context, actor *domain.User, in CreateRequestInput) (*domain.Request, error) {
	ctx, span := s.start(ctx, "RequestService.Create", actor)
	defer span.End()

	if err := s.authz.ValidatePermission(actor, security.PermCreateRequest); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	projectType := strings.TrimSpace(in.ProjectType)
	priority := strings.ToLower(strings.TrimSpace(in.Priority))
	if err := validateLength("title", title, 5, 100); err != nil {
		return nil, err
	}
	if err := validateLength("description", description, 10, 2000); err != nil {
		return nil, err
	}
	if projectType == "" {
		return nil, apperr.Validation("projectType is required")
	}
	if priority != "" && !validPriorities[priority] {
		return nil, apperr.Validation("priority must be one of low, medium, high, urgent")
	}
	if in.Budget != nil && *in.Budget < 0 {
		return nil, apperr.Validation("budget must be greater than or equal to 0")
	}

	now := s.now()
	reason := ReasonCreated
	req := &domain.Request{
		ID:             uuid.NewString(),
		Title:          title,
		Description:    description,
		ProjectType:    projectType,
		Priority:       priority,
		Budget:         in.Budget,
		Timeframe:      strings.TrimSpace(in.Timeframe),
		BusinessGoals:  strings.TrimSpace(in.BusinessGoals),
		TargetAudience: strings.TrimSpace(in.TargetAudience),
		AdditionalInfo: strings.TrimSpace(in.AdditionalInfo),
		Status:         domain.StatusDraft,
		ClientID:       actor.ID,
		Comments:       []domain.Comment{},
		Files:          []domain.AttachedFile{},
		StatusHistory: []domain.StatusChange{{
			FromStatus: nil,
			ToStatus:   domain.StatusDraft,
			ChangedBy:  actor.ID,
			ChangedAt:  now,
			Reason:     &reason,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		span.RecordError(err)
		return nil, apperr.Internal("failed to create request", err)
	}
	span.SetAttributes(attribute.String("request.id", req.ID))

	s.logger.Info("request created",
		slog.String("request_id", req.ID),
		slog.String("user_id", actor.ID),
	)

	s.notifier.NotifyAdmins(ctx, "", domain.NotificationRequestCreated,
		"Nueva solicitud",
		fmt.Sprintf("%s creó la solicitud %q", fullName(actor), req.Title),
		map[string]any{"request_id": req.ID, "client_id": actor.ID},
	)
	return req, nil
}

// List returns a page of summaries. Clients only ever see their own requests.
func (s *RequestService) List(ctx context.Context, actor *domain.User, in ListRequestsInput) (*RequestPage, error) {
	ctx, span := s.start(ctx, "RequestService.List", actor)
	defer span.End()

	filter := domain.RequestFilter{
		Search: strings.TrimSpace(in.Search),
		Skip:   max(in.Skip, 0),
		Limit:  in.Limit,
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultRequestLimit
	}
	filter.Limit = min(filter.Limit, maxRequestLimit)

	// Unknown status filters are ignored rather than rejected.
	if st := domain.Status(strings.TrimSpace(in.Status)); st.Valid() {
		filter.Status = st
	}

	if s.authz.HasPermission(actor.Role, security.PermListAllRequests) {
		if in.ClientID != "" {
			if err := validateID(in.ClientID, "client"); err != nil {
				return nil, err
			}
			filter.ClientID = in.ClientID
		}
	} else {
		filter.ClientID = actor.ID
	}

	items, total, err := s.requests.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Internal("failed to list requests", err)
	}

	ids := make([]string, 0, len(items)*2)
	for _, req := range items {
		ids = append(ids, req.ClientID)
		if req.AssignedTo != nil {
			ids = append(ids, *req.AssignedTo)
		}
	}
	users, err := s.resolveUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	page := &RequestPage{
		Success:  true,
		Total:    total,
		Skip:     filter.Skip,
		Limit:    filter.Limit,
		Requests: make([]RequestSummary, 0, len(items)),
	}
	for _, req := range items {
		page.Requests = append(page.Requests, summarize(req, users))
	}
	return page, nil
}

// Get returns the full detail with every referenced user resolved in one lookup.
func (s *RequestService) Get(ctx context.Context, actor *domain.User, id string) (*RequestDetail, error) {
	ctx, span := s.start(ctx, "RequestService.Get", actor)
	defer span.End()

	req, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, req)
}

// Update applies a patch. Clients may only edit their own drafts and never
// touch status or assignment. A status inside the patch is a transition.
func (s *RequestService) Update(ctx context.Context, actor *domain.User, id string, in UpdateRequestInput) error {
	ctx, span := s.start(ctx, "RequestService.Update", actor)
	defer span.End()

	req, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		if req.Status != domain.StatusDraft {
			return apperr.Forbidden("only draft requests can be edited")
		}
		if in.Status != nil || in.AssignedTo != nil {
			return apperr.Forbidden("clients cannot change status or assignment")
		}
	}

	patch, err := s.buildPatch(ctx, in)
	if err != nil {
		return err
	}
	if patch.Empty() {
		return apperr.Validation("no fields to update")
	}

	now := s.now()
	var change *domain.StatusChange
	if patch.Status != nil {
		if *patch.Status == req.Status {
			return apperr.Conflict(fmt.Sprintf("request is already %s", req.Status))
		}
		from := req.Status
		reason := ReasonViaUpdate
		change = &domain.StatusChange{
			FromStatus: &from,
			ToStatus:   *patch.Status,
			ChangedBy:  actor.ID,
			ChangedAt:  now,
			Reason:     &reason,
		}
	}

	if err := s.requests.Update(ctx, req.ID, patch, change, now); err != nil {
		span.RecordError(err)
		if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return apperr.Internal("failed to update request", err)
	}

	if change != nil {
		s.afterTransition(ctx, actor, req, *change)
		s.notifyOwnerOfStatus(ctx, req, *change)
	}
	return nil
}

func (s *RequestService) buildPatch(ctx context.Context, in UpdateRequestInput) (domain.RequestPatch, error) {
	patch := domain.RequestPatch{
		Title:          trimPtr(in.Title),
		Description:    trimPtr(in.Description),
		ProjectType:    trimPtr(in.ProjectType),
		Budget:         in.Budget,
		Timeframe:      trimPtr(in.Timeframe),
		BusinessGoals:  trimPtr(in.BusinessGoals),
		TargetAudience: trimPtr(in.TargetAudience),
		AdditionalInfo: trimPtr(in.AdditionalInfo),
		Progress:       in.Progress,
	}
	if patch.Title != nil {
		if err := validateLength("title", *patch.Title, 5, 100); err != nil {
			return patch, err
		}
	}
	if patch.Description != nil {
		if err := validateLength("description", *patch.Description, 10, 2000); err != nil {
			return patch, err
		}
	}
	if patch.ProjectType != nil && *patch.ProjectType == "" {
		return patch, apperr.Validation("projectType cannot be empty")
	}
	if in.Priority != nil {
		p := strings.ToLower(strings.TrimSpace(*in.Priority))
		if p != "" && !validPriorities[p] {
			return patch, apperr.Validation("priority must be one of low, medium, high, urgent")
		}
		patch.Priority = &p
	}
	if patch.Budget != nil && *patch.Budget < 0 {
		return patch, apperr.Validation("budget must be greater than or equal to 0")
	}
	if patch.Progress != nil && (*patch.Progress < 0 || *patch.Progress > 100) {
		return patch, apperr.Validation("progress must be between 0 and 100")
	}
	if in.Status != nil {
		st := domain.Status(strings.TrimSpace(*in.Status))
		if !st.Valid() {
			return patch, apperr.Validationf("invalid status %q", *in.Status)
		}
		patch.Status = &st
	}
	if in.AssignedTo != nil {
		assignee := strings.TrimSpace(*in.AssignedTo)
		if assignee != "" {
			if err := s.requireAdmin(ctx, assignee); err != nil {
				return patch, err
			}
		}
		patch.AssignedTo = &assignee
	}
	return patch, nil
}

// requireAdmin checks that id names an existing admin.
func (s *RequestService) requireAdmin(ctx context.Context, id string) error {
	if err := validateID(id, "assigned user"); err != nil {
		return err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Validation("assigned user does not exist")
		}
		return apperr.Internal("failed to resolve assigned user", err)
	}
	if !u.IsAdmin() {
		return apperr.Validation("assigned user must be an admin")
	}
	return nil
}

// ChangeStatus is the admin transition. Moving to the current status is a Conflict.
func (s *RequestService) ChangeStatus(ctx context.Context, actor *domain.User, id, toStatus, reason string) (*domain.StatusChange, error) {
	ctx, span := s.start(ctx, "RequestService.ChangeStatus", actor)
	defer span.End()

	if err := s.authz.ValidatePermission(actor, security.PermChangeStatus); err != nil {
		s.audit.LogDenied(ctx, actorID(actor), "change status on request "+id)
		return nil, err
	}
	to := domain.Status(strings.TrimSpace(toStatus))
	if !to.Valid() {
		return nil, apperr.Validationf("invalid status %q", toStatus)
	}
	req, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if req.Status == to {
		return nil, apperr.Conflict(fmt.Sprintf("request is already %s", to))
	}

	from := req.Status
	change := domain.StatusChange{
		FromStatus: &from,
		ToStatus:   to,
		ChangedBy:  actor.ID,
		ChangedAt:  s.now(),
	}
	if r := strings.TrimSpace(reason); r != "" {
		change.Reason = &r
	}
	if err := s.requests.AppendStatus(ctx, req.ID, change); err != nil {
		span.RecordError(err)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Internal("failed to change status", err)
	}
	span.SetAttributes(attribute.String("request.from", string(from)), attribute.String("request.to", string(to)))

	s.afterTransition(ctx, actor, req, change)
	s.notifyOwnerOfStatus(ctx, req, change)
	s.notifier.NotifyAdmins(ctx, actor.ID, domain.NotificationStatusUpdated,
		"Estado de solicitud actualizado",
		fmt.Sprintf("%s cambió la solicitud %q a %s", fullName(actor), req.Title, to.Label()),
		statusData(req, change),
	)
	return &change, nil
}

// Submit moves the owner's draft to submitted.
func (s *RequestService) Submit(ctx context.Context, actor *domain.User, id string) (*domain.StatusChange, error) {
	ctx, span := s.start(ctx, "RequestService.Submit", actor)
	defer span.End()

	if err := s.authz.ValidatePermission(actor, security.PermSubmitRequest); err != nil {
		return nil, err
	}
	req, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.StatusDraft {
		return nil, apperr.Validation("only draft requests can be submitted")
	}

	from := req.Status
	reason := ReasonSubmitted
	change := domain.StatusChange{
		FromStatus: &from,
		ToStatus:   domain.StatusSubmitted,
		ChangedBy:  actor.ID,
		ChangedAt:  s.now(),
		Reason:     &reason,
	}
	if err := s.requests.AppendStatus(ctx, req.ID, change); err != nil {
		span.RecordError(err)
		return nil, apperr.Internal("failed to submit request", err)
	}

	s.afterTransition(ctx, actor, req, change)
	s.notifier.NotifyAdmins(ctx, "", domain.NotificationStatusUpdated,
		"Solicitud enviada",
		fmt.Sprintf("%s envió la solicitud %q para revisión", fullName(actor), req.Title),
		statusData(req, change),
	)
	return &change, nil
}

// Delete removes a request. Clients may only delete their own drafts.
func (s *RequestService) Delete(ctx context.Context, actor *domain.User, id string) error {
	ctx, span := s.start(ctx, "RequestService.Delete", actor)
	defer span.End()

	req, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.authz.ValidatePermission(actor, security.PermDeleteRequest); err != nil {
		return err
	}
	if !actor.IsAdmin() && req.Status != domain.StatusDraft {
		return apperr.Forbidden("only draft requests can be deleted")
	}

	if err := s.requests.Delete(ctx, req.ID); err != nil {
		span.RecordError(err)
		if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return apperr.Internal("failed to delete request", err)
	}
	for _, f := range req.Files {
		s.removeBlob(ctx, f.StoragePath)
	}
	s.audit.LogDeletion(ctx, actor.ID, "request", req.ID)
	return nil
}

// AddComment appends a comment and notifies the other party.
func (s *RequestService) AddComment(ctx context.Context, actor *domain.User, id, content string) (*CommentView, error) {
	ctx, span := s.start(ctx, "RequestService.AddComment", actor)
	defer span.End()

	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validation("comment content is required")
	}
	if utf8.RuneCountInString(content) > maxCommentLength {
		return nil, apperr.Validationf("comment must be at most %d characters", maxCommentLength)
	}
	if err := s.authz.ValidatePermission(actor, security.PermCommentRequest); err != nil {
		return nil, err
	}
	req, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	comment := domain.Comment{
		ID:        uuid.NewString(),
		UserID:    actor.ID,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.requests.AppendComment(ctx, req.ID, comment); err != nil {
		span.RecordError(err)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Internal("failed to add comment", err)
	}

	s.notifyCounterpart(ctx, actor, req, domain.NotificationCommentAdded,
		"Nuevo comentario",
		fmt.Sprintf("%s comentó en la solicitud %q", fullName(actor), req.Title),
		map[string]any{"request_id": req.ID, "comment_id": comment.ID},
	)

	summary := actor.Summary()
	return &CommentView{Comment: comment, User: &summary}, nil
}

// AttachFile stores an upload in the blob store and appends it to the request.
func (s *RequestService) AttachFile(
	ctx context.Context,
	actor *domain.User,
	id, filename, contentType string,
	size int64,
	body io.Reader,
) (*FileView, error) {
	ctx, span := s.start(ctx, "RequestService.AttachFile", actor)
	defer span.End()

	if err := s.authz.ValidatePermission(actor, security.PermAttachFile); err != nil {
		return nil, err
	}
	req, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, apperr.Validation("file name is required")
	}
	if s.maxUploadBytes > 0 && size > s.maxUploadBytes {
		return nil, apperr.Validationf("file exceeds the %d MB limit", s.maxUploadBytes>>20)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	blob, err := s.blobs.Put(ctx, storage.NewKey("requests/"+req.ID, filename), body, contentType)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Internal("failed to store file", err)
	}
	file := domain.AttachedFile{
		ID:          uuid.NewString(),
		UserID:      actor.ID,
		Filename:    filename,
		StoragePath: blob.Key,
		Size:        blob.Size,
		ContentType: contentType,
		UploadedAt:  s.now(),
	}
	if err := s.requests.AppendFile(ctx, req.ID, file); err != nil {
		s.removeBlob(ctx, blob.Key)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Internal("failed to attach file", err)
	}

	s.notifyCounterpart(ctx, actor, req, domain.NotificationFileUploaded,
		"Nuevo archivo",
		fmt.Sprintf("%s adjuntó %q a la solicitud %q", fullName(actor), filename, req.Title),
		map[string]any{"request_id": req.ID, "file_id": file.ID},
	)

	summary := actor.Summary()
	return &FileView{AttachedFile: file, DownloadURL: downloadURL(req.ID, file.ID), User: &summary}, nil
}

// OpenFile streams an attachment. The caller closes the reader.
func (s *RequestService) OpenFile(ctx context.Context, actor *domain.User, id, fileID string) (*domain.AttachedFile, io.ReadCloser, error) {
	ctx, span := s.start(ctx, "RequestService.OpenFile", actor)
	defer span.End()

	req, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	for i := range req.Files {
		f := req.Files[i]
		if f.ID != fileID {
			continue
		}
		rc, err := s.blobs.Open(ctx, f.StoragePath)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, nil, apperr.NotFound("file content not found")
			}
			return nil, nil, apperr.Internal("failed to open file", err)
		}
		return &f, rc, nil
	}
	return nil, nil, apperr.NotFound("file not found")
}

// load fetches the request and applies the visibility rule shared by every
// per-request operation.
func (s *RequestService) load(ctx context.Context, actor *domain.User, id string) (*domain.Request, error) {
	if err := validateID(id, "request"); err != nil {
		return nil, err
	}
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("request not found")
		}
		return nil, apperr.Internal("failed to load request", err)
	}
	if err := s.authz.ValidateResourceAccess(actor, security.ResourcePermission{
		ResourceType: security.ResourceRequest,
		ResourceID:   req.ID,
		OwnerID:      req.ClientID,
	}); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *RequestService) detail(ctx context.Context, req *domain.Request) (*RequestDetail, error) {
	ids := []string{req.ClientID}
	if req.AssignedTo != nil {
		ids = append(ids, *req.AssignedTo)
	}
	for _, c := range req.Comments {
		ids = append(ids, c.UserID)
	}
	for _, f := range req.Files {
		ids = append(ids, f.UserID)
	}
	for _, h := range req.StatusHistory {
		ids = append(ids, h.ChangedBy)
	}
	users, err := s.resolveUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	d := &RequestDetail{
		RequestSummary: summarize(req, users),
		Comments:       make([]CommentView, 0, len(req.Comments)),
		Files:          make([]FileView, 0, len(req.Files)),
		StatusHistory:  make([]StatusChangeView, 0, len(req.StatusHistory)),
	}
	for _, c := range req.Comments {
		d.Comments = append(d.Comments, CommentView{Comment: c, User: userSummary(users, c.UserID)})
	}
	for _, f := range req.Files {
		d.Files = append(d.Files, FileView{
			AttachedFile: f,
			DownloadURL:  downloadURL(req.ID, f.ID),
			User:         userSummary(users, f.UserID),
		})
	}
	for _, h := range req.StatusHistory {
		v := StatusChangeView{
			StatusChange:  h,
			ToStatusLabel: h.ToStatus.Label(),
			ChangedByUser: userSummary(users, h.ChangedBy),
		}
		if h.FromStatus != nil {
			label := h.FromStatus.Label()
			v.FromStatusLabel = &label
		}
		d.StatusHistory = append(d.StatusHistory, v)
	}
	return d, nil
}

// resolveUsers deduplicates ids and fetches them in a single round trip.
func (s *RequestService) resolveUsers(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return map[string]*domain.User{}, nil
	}
	users, err := s.users.GetMany(ctx, unique)
	if err != nil {
		return nil, apperr.Internal("failed to resolve users", err)
	}
	return users, nil
}

func (s *RequestService) afterTransition(ctx context.Context, actor *domain.User, req *domain.Request, change domain.StatusChange) {
	from := ""
	if change.FromStatus != nil {
		from = string(*change.FromStatus)
	}
	metrics.ObserveTransition(from, string(change.ToStatus))
	s.audit.LogStatusChange(ctx, actor.ID, req.ID, from, string(change.ToStatus))
	s.logger.Info("request status changed",
		slog.String("request_id", req.ID),
		slog.String("user_id", actor.ID),
		slog.String("from", from),
		slog.String("to", string(change.ToStatus)),
	)
}

func (s *RequestService) notifyOwnerOfStatus(ctx context.Context, req *domain.Request, change domain.StatusChange) {
	s.notifier.Notify(ctx, req.ClientID, domain.NotificationStatusUpdated,
		"Estado de solicitud actualizado",
		fmt.Sprintf("Tu solicitud %q cambió a %s", req.Title, change.ToStatus.Label()),
		statusData(req, change),
	)
}

// notifyCounterpart tells the owner about admin activity, and the assigned
// admin (or every admin when unassigned) about client activity.
func (s *RequestService) notifyCounterpart(
	ctx context.Context,
	actor *domain.User,
	req *domain.Request,
	kind domain.NotificationType,
	title, message string,
	data map[string]any,
) {
	switch {
	case actor.ID != req.ClientID:
		s.notifier.Notify(ctx, req.ClientID, kind, title, message, data)
	case req.AssignedTo != nil && *req.AssignedTo != "":
		s.notifier.Notify(ctx, *req.AssignedTo, kind, title, message, data)
	default:
		s.notifier.NotifyAdmins(ctx, actor.ID, kind, title, message, data)
	}
}

func (s *RequestService) removeBlob(ctx context.Context, key string) {
	if key == "" || s.blobs == nil {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to remove blob",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (s *RequestService) start(ctx context.Context, name string, actor *domain.User) (context.Context, trace.Span) {
	ctx, span := tracing.Tracer().Start(ctx, name)
	span.SetAttributes(attribute.String("user.id", actorID(actor)))
	return ctx, span
}

func summarize(req *domain.Request, users map[string]*domain.User) RequestSummary {
	sum := RequestSummary{
		ID:             req.ID,
		Title:          req.Title,
		Description:    req.Description,
		Status:         req.Status,
		StatusLabel:    req.Status.Label(),
		ProjectType:    req.ProjectType,
		Priority:       req.Priority,
		ClientID:       req.ClientID,
		Client:         userSummary(users, req.ClientID),
		AssignedTo:     req.AssignedTo,
		Budget:         req.Budget,
		Timeframe:      req.Timeframe,
		BusinessGoals:  req.BusinessGoals,
		TargetAudience: req.TargetAudience,
		AdditionalInfo: req.AdditionalInfo,
		Progress:       req.Progress,
		CommentsCount:  len(req.Comments),
		FilesCount:     len(req.Files),
		CreatedAt:      req.CreatedAt,
		UpdatedAt:      req.UpdatedAt,
	}
	if req.AssignedTo != nil {
		sum.AssignedAdmin = userSummary(users, *req.AssignedTo)
	}
	return sum
}

func userSummary(users map[string]*domain.User, id string) *domain.UserSummary {
	u, ok := users[id]
	if !ok {
		return nil
	}
	s := u.Summary()
	return &s
}

func statusData(req *domain.Request, change domain.StatusChange) map[string]any {
	data := map[string]any{
		"request_id": req.ID,
		"to_status":  string(change.ToStatus),
	}
	if change.FromStatus != nil {
		data["from_status"] = string(*change.FromStatus)
	}
	if change.Reason != nil {
		data["reason"] = *change.Reason
	}
	return data
}

func downloadURL(requestID, fileID string) string {
	return "/api/requests/" + requestID + "/files/" + fileID
}

func actorID(u *domain.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

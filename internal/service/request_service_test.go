package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/domain"
)

func TestCreateRequestNotifiesAdmins(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest(t, f.client, "Company website")

	if req.Status != domain.StatusDraft {
		t.Fatalf("expected draft, got %s", req.Status)
	}
	if len(req.StatusHistory) != 1 || req.StatusHistory[0].FromStatus != nil ||
		*req.StatusHistory[0].Reason != ReasonCreated {
		t.Fatalf("unexpected genesis history %+v", req.StatusHistory)
	}
	for _, admin := range []*domain.User{f.admin, f.admin2} {
		got := f.notificationsOf(t, admin.ID, domain.NotificationRequestCreated)
		if len(got) != 1 || got[0].Data["request_id"] != req.ID {
			t.Fatalf("admin %s: expected one request_created notification, got %+v", admin.Email, got)
		}
	}
	if got := f.notificationsOf(t, f.client.ID, domain.NotificationRequestCreated); len(got) != 0 {
		t.Fatalf("client should not be notified of own request")
	}
}

func TestCreateRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := map[string]CreateRequestInput{
		"short title":       {Title: "Hey", Description: "A long enough description", ProjectType: "web"},
		"short description": {Title: "Valid title", Description: "short", ProjectType: "web"},
		"no project type":   {Title: "Valid title", Description: "A long enough description"},
		"bad priority":      {Title: "Valid title", Description: "A long enough description", ProjectType: "web", Priority: "asap"},
		"negative budget":   {Title: "Valid title", Description: "A long enough description", ProjectType: "web", Budget: ptr(-1.0)},
	}
	for name, in := range cases {
		if _, err := f.requestSvc.Create(ctx, f.client, in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
	if _, err := f.requestSvc.Create(ctx, f.admin, CreateRequestInput{
		Title: "Valid title", Description: "A long enough description", ProjectType: "web",
	}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("admins cannot create requests, got %v", err)
	}
}

func TestChangeStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.createRequest(t, f.client, "Company website")

	change, err := f.requestSvc.ChangeStatus(ctx, f.admin, req.ID, "planning", "  scoped  ")
	if err != nil {
		t.Fatalf("change status: %v", err)
	}
	if *change.FromStatus != domain.StatusDraft || change.ToStatus != domain.StatusPlanning || *change.Reason != "scoped" {
		t.Fatalf("unexpected change %+v", change)
	}

	detail, err := f.requestSvc.Get(ctx, f.client, req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.Status != domain.StatusPlanning || len(detail.StatusHistory) != 2 {
		t.Fatalf("unexpected detail %+v", detail.RequestSummary)
	}
	last := detail.StatusHistory[1]
	if last.ToStatusLabel != "Planificación" || last.ChangedByUser == nil || last.ChangedByUser.ID != f.admin.ID {
		t.Fatalf("unexpected history view %+v", last)
	}

	if got := f.notificationsOf(t, f.client.ID, domain.NotificationStatusUpdated); len(got) != 1 {
		t.Fatalf("owner should get one status notification, got %d", len(got))
	}
	if got := f.notificationsOf(t, f.admin2.ID, domain.NotificationStatusUpdated); len(got) != 1 {
		t.Fatalf("other admin should get one status notification, got %d", len(got))
	}
	if got := f.notificationsOf(t, f.admin.ID, domain.NotificationStatusUpdated); len(got) != 0 {
		t.Fatalf("acting admin should not notify itself")
	}

	if _, err := f.requestSvc.ChangeStatus(ctx, f.admin, req.ID, "planning", ""); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("same status should conflict, got %v", err)
	}
	if _, err := f.requestSvc.ChangeStatus(ctx, f.admin, req.ID, "flying", ""); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("unknown status should be invalid, got %v", err)
	}
	if _, err := f.requestSvc.ChangeStatus(ctx, f.client, req.ID, "approved", ""); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("client status change should be forbidden, got %v", err)
	}
}

func TestVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.createRequest(t, f.client, "Client request")
	theirs := f.createRequest(t, f.other, "Other request")

	if _, err := f.requestSvc.Get(ctx, f.client, theirs.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("foreign request should be forbidden, got %v", err)
	}
	if _, err := f.requestSvc.Get(ctx, f.admin, theirs.ID); err != nil {
		t.Fatalf("admin get: %v", err)
	}

	page, err := f.requestSvc.List(ctx, f.client, ListRequestsInput{ClientID: f.other.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 || page.Requests[0].ID != mine.ID {
		t.Fatalf("client must only see own requests, got %+v", page)
	}

	page, err = f.requestSvc.List(ctx, f.admin, ListRequestsInput{ClientID: f.other.ID})
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if page.Total != 1 || page.Requests[0].ID != theirs.ID || page.Requests[0].Client.Email != f.other.Email {
		t.Fatalf("admin clientId filter failed: %+v", page)
	}
}

func TestListSearchAndPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, title := range []string{"Mobile banking app", "Landing page", "Banking portal", "Inventory tool"} {
		f.createRequest(t, f.client, title)
	}

	page, err := f.requestSvc.List(ctx, f.admin, ListRequestsInput{Search: "banking"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 matches, got %d", page.Total)
	}

	page, err = f.requestSvc.List(ctx, f.admin, ListRequestsInput{Skip: 1, Limit: 2, Status: "bogus"})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if page.Total != 4 || len(page.Requests) != 2 || page.Skip != 1 || page.Limit != 2 {
		t.Fatalf("unexpected page %+v", page)
	}

	page, err = f.requestSvc.List(ctx, f.admin, ListRequestsInput{Limit: 1000})
	if err != nil || page.Limit != maxRequestLimit {
		t.Fatalf("limit should clamp to %d: %+v %v", maxRequestLimit, page, err)
	}
}

func TestUpdateRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.createRequest(t, f.client, "Company website")

	if err := f.requestSvc.Update(ctx, f.client, req.ID, UpdateRequestInput{Title: ptr("Company web portal")}); err != nil {
		t.Fatalf("client draft update: %v", err)
	}
	if err := f.requestSvc.Update(ctx, f.client, req.ID, UpdateRequestInput{Status: ptr("approved")}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("client status patch should be forbidden, got %v", err)
	}
	if err := f.requestSvc.Update(ctx, f.client, req.ID, UpdateRequestInput{}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("empty patch should be invalid, got %v", err)
	}

	if err := f.requestSvc.Update(ctx, f.admin, req.ID, UpdateRequestInput{AssignedTo: ptr(f.other.ID)}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("assigning a client should be invalid, got %v", err)
	}
	if err := f.requestSvc.Update(ctx, f.admin, req.ID, UpdateRequestInput{
		Status:     ptr("estimation"),
		AssignedTo: ptr(f.admin.ID),
		Progress:   ptr(20),
	}); err != nil {
		t.Fatalf("admin update: %v", err)
	}

	detail, err := f.requestSvc.Get(ctx, f.admin, req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.Title != "Company web portal" || detail.Status != domain.StatusEstimation || detail.Progress != 20 {
		t.Fatalf("unexpected detail %+v", detail.RequestSummary)
	}
	if detail.AssignedAdmin == nil || detail.AssignedAdmin.ID != f.admin.ID {
		t.Fatalf("assigned admin not resolved")
	}
	last := detail.StatusHistory[len(detail.StatusHistory)-1]
	if last.Reason == nil || *last.Reason != ReasonViaUpdate {
		t.Fatalf("expected via-update reason, got %+v", last)
	}

	if err := f.requestSvc.Update(ctx, f.admin, req.ID, UpdateRequestInput{Status: ptr("estimation")}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("same status patch should conflict, got %v", err)
	}
	if err := f.requestSvc.Update(ctx, f.client, req.ID, UpdateRequestInput{Title: ptr("Too late to edit")}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("client edit after draft should be forbidden, got %v", err)
	}
}

func TestSubmitAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.createRequest(t, f.client, "Company website")
	draft := f.createRequest(t, f.client, "Throwaway draft")

	change, err := f.requestSvc.Submit(ctx, f.client, req.ID)
	if err != nil || change.ToStatus != domain.StatusSubmitted {
		t.Fatalf("submit: %+v %v", change, err)
	}
	if _, err := f.requestSvc.Submit(ctx, f.client, req.ID); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("double submit should be invalid, got %v", err)
	}
	if err := f.requestSvc.Delete(ctx, f.client, req.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("client delete of submitted request should be forbidden, got %v", err)
	}
	if err := f.requestSvc.Delete(ctx, f.other, draft.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("foreign delete should be forbidden, got %v", err)
	}
	if err := f.requestSvc.Delete(ctx, f.client, draft.ID); err != nil {
		t.Fatalf("draft delete: %v", err)
	}
	if err := f.requestSvc.Delete(ctx, f.admin, req.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := f.requestSvc.Get(ctx, f.admin, req.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("deleted request should be gone, got %v", err)
	}
}

func TestMalformedIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.requestSvc.Get(ctx, f.admin, "not-a-uuid"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("malformed id should be invalid, got %v", err)
	}
	if _, err := f.requestSvc.Get(ctx, f.admin, "6f1c8f8e-2d7e-4b59-9d5a-8c1f0b2a3e4d"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown id should be not found, got %v", err)
	}
}

func TestCommentsNotifyCounterpart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.createRequest(t, f.client, "Company website")

	content := "  <b>Can we add a blog?</b>  "
	view, err := f.requestSvc.AddComment(ctx, f.client, req.ID, content)
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if view.Content != content || view.User.ID != f.client.ID {
		t.Fatalf("comment should be stored verbatim, got %+v", view)
	}
	for _, admin := range []*domain.User{f.admin, f.admin2} {
		if got := f.notificationsOf(t, admin.ID, domain.NotificationCommentAdded); len(got) != 1 {
			t.Fatalf("unassigned request comment should reach every admin")
		}
	}

	if _, err := f.requestSvc.AddComment(ctx, f.admin, req.ID, "Sure"); err != nil {
		t.Fatalf("admin comment: %v", err)
	}
	if got := f.notificationsOf(t, f.client.ID, domain.NotificationCommentAdded); len(got) != 1 {
		t.Fatalf("owner should be notified of admin comment")
	}

	if _, err := f.requestSvc.AddComment(ctx, f.client, req.ID, "   "); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("blank comment should be invalid, got %v", err)
	}
	if _, err := f.requestSvc.AddComment(ctx, f.client, req.ID, strings.Repeat("x", maxCommentLength+1)); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("long comment should be invalid, got %v", err)
	}
	if _, err := f.requestSvc.AddComment(ctx, f.other, req.ID, "hello"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("foreign comment should be forbidden, got %v", err)
	}

	detail, err := f.requestSvc.Get(ctx, f.client, req.ID)
	if err != nil || detail.CommentsCount != 2 || detail.Comments[1].User.ID != f.admin.ID {
		t.Fatalf("unexpected comments %+v %v", detail, err)
	}
}

func TestAttachAndOpenFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.createRequest(t, f.client, "Company website")

	body := "mockup bytes"
	view, err := f.requestSvc.AttachFile(ctx, f.client, req.ID, "../Mockup.PNG", "image/png", int64(len(body)), strings.NewReader(body))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if view.Filename != "Mockup.PNG" || view.Size != int64(len(body)) || !strings.HasSuffix(view.StoragePath, ".png") {
		t.Fatalf("unexpected file view %+v", view)
	}
	if view.DownloadURL == "" {
		t.Fatalf("download url missing")
	}

	meta, rc, err := f.requestSvc.OpenFile(ctx, f.admin, req.ID, view.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != body || meta.ContentType != "image/png" {
		t.Fatalf("unexpected content %q (%s)", got, meta.ContentType)
	}

	if _, _, err := f.requestSvc.OpenFile(ctx, f.admin, req.ID, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown file should be not found, got %v", err)
	}
	if _, err := f.requestSvc.AttachFile(ctx, f.client, req.ID, "big.bin", "", 2<<20, strings.NewReader("x")); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("oversized file should be invalid, got %v", err)
	}
	if got := f.notificationsOf(t, f.admin.ID, domain.NotificationFileUploaded); len(got) != 1 {
		t.Fatalf("admins should be notified of uploads")
	}
}

func TestStatusChangePushedLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.createRequest(t, f.client, "Company website")

	ch := &recordingChannel{}
	f.registry.Connect(f.client.ID, ch)
	if _, err := f.requestSvc.ChangeStatus(ctx, f.admin, req.ID, "approved", ""); err != nil {
		t.Fatalf("change status: %v", err)
	}

	msgs := ch.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one live push, got %d", len(msgs))
	}
	n, ok := msgs[0].(*domain.Notification)
	if !ok || n.Type != domain.NotificationStatusUpdated || n.Data["to_status"] != "approved" {
		t.Fatalf("unexpected push %#v", msgs[0])
	}
}

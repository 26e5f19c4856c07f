package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/requestdesk/internal/domain"
	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/storage"
	"github.com/aryan0dhankhar/requestdesk/internal/notify"
	"github.com/aryan0dhankhar/requestdesk/internal/repository/memory"
	"github.com/aryan0dhankhar/requestdesk/internal/security"
	"github.com/aryan0dhankhar/requestdesk/internal/security/audit"
	"github.com/aryan0dhankhar/requestdesk/internal/security/auth"
	"github.com/aryan0dhankhar/requestdesk/internal/security/ratelimit"
	"github.com/aryan0dhankhar/requestdesk/internal/service"
)

type nopMailer struct{}

func (nopMailer) SendVerification(context.Context, string, string, string) error  { return nil }
func (nopMailer) SendPasswordReset(context.Context, string, string, string) error { return nil }

type testServer struct {
	*httptest.Server
	tokens *auth.TokenManager
	users  *memory.UserRepository

	client, other, admin *domain.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	t.Setenv("FLAG_REQUIRE_EMAIL_VERIFICATION", "false")

	log := logger.Discard()
	users := memory.NewUserRepository()
	tokens := auth.NewTokenManager("test-secret", "requestdesk")
	registry := notify.NewRegistry(log)
	auditLog := audit.NewLogger(log)

	uploadDir := t.TempDir()
	blobs, err := storage.NewLocalStore(uploadDir, "/uploads", log)
	require.NoError(t, err)

	notifications := service.NewNotificationService(memory.NewNotificationRepository(), users, registry, log)
	requests := service.NewRequestService(memory.NewRequestRepository(), users, notifications, blobs,
		security.NewAuthorizationService(log), auditLog, 1<<20, log)
	receipts := service.NewReceiptService(memory.NewReceiptRepository(), blobs, auditLog, 1<<20, log)
	authSvc := service.NewAuthService(users, tokens, auth.NewMemoryLedger(), nopMailer{}, auditLog, "http://localhost:5173", log)

	router := NewRouter(RouterConfig{
		Auth:           authSvc,
		Requests:       requests,
		Receipts:       receipts,
		Notifications:  notifications,
		Registry:       registry,
		Tokens:         tokens,
		Users:          users,
		Limiter:        ratelimit.NewLimiter(100, 100),
		Audit:          auditLog,
		AllowedOrigins: []string{"*"},
		MaxUploadBytes: 1 << 20,
		UploadDir:      uploadDir,
		Logger:         log,
	})

	ts := &testServer{Server: httptest.NewServer(router), tokens: tokens, users: users}
	t.Cleanup(ts.Close)

	ts.client = ts.mkUser(t, "client@example.com", domain.RoleClient)
	ts.other = ts.mkUser(t, "other@example.com", domain.RoleClient)
	ts.admin = ts.mkUser(t, "admin@example.com", domain.RoleAdmin)
	return ts
}

func (ts *testServer) mkUser(t *testing.T, email string, role domain.Role) *domain.User {
	t.Helper()
	u := &domain.User{FirstName: "Test", LastName: "User", Email: email, PasswordHash: "x", Role: role, EmailVerified: true}
	require.NoError(t, ts.users.Create(context.Background(), u))
	return u
}

func (ts *testServer) token(t *testing.T, u *domain.User) string {
	t.Helper()
	tok, err := ts.tokens.IssueAccessToken(u.ID)
	require.NoError(t, err)
	return tok
}

// do sends a JSON request as u (nil for anonymous) and decodes the response into out.
func (ts *testServer) do(t *testing.T, u *domain.User, method, path string, body any, out any) int {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+ts.token(t, u))
	}
	return ts.send(t, req, out)
}

func (ts *testServer) send(t *testing.T, req *http.Request, out any) int {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) createRequest(t *testing.T, owner *domain.User) string {
	t.Helper()
	var created CreateRequestResponse
	status := ts.do(t, owner, http.MethodPost, "/api/requests", map[string]any{
		"title":       "Company website",
		"description": "Need a new site for the company",
		"projectType": "web_app",
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, created.RequestID)
	return created.RequestID
}

func TestRouterRequiresBearerToken(t *testing.T) {
	ts := newTestServer(t)

	var body ErrorResponse
	status := ts.do(t, nil, http.MethodGet, "/api/requests", nil, &body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.NotEmpty(t, body.Error)
}

func TestRouterRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	var reg service.RegisterResult
	status := ts.do(t, nil, http.MethodPost, "/api/auth/register", map[string]string{
		"firstName": "Ana",
		"lastName":  "García",
		"email":     "Ana@Example.com",
		"password":  "secret123",
	}, &reg)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "ana@example.com", reg.User.Email)
	assert.Equal(t, domain.RoleClient, reg.User.Role)

	var login service.LoginResult
	status = ts.do(t, nil, http.MethodPost, "/api/auth/login", LoginRequest{Email: "ana@example.com", Password: "secret123"}, &login)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, login.User.Token)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/auth/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.User.Token)
	var me UserResponse
	assert.Equal(t, http.StatusOK, ts.send(t, req, &me))
	assert.True(t, me.Success)

	status = ts.do(t, nil, http.MethodPost, "/api/auth/login", LoginRequest{Email: "ana@example.com", Password: "wrong-pass"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRouterForgotPasswordUnknownEmail(t *testing.T) {
	ts := newTestServer(t)

	var body MessageResponse
	status := ts.do(t, nil, http.MethodPost, "/api/auth/forgot-password", EmailRequest{Email: "nobody@example.com"}, &body)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)
}

func TestRouterRejectsNonJSONBody(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/auth/login", strings.NewReader("email=a"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusUnsupportedMediaType, ts.send(t, req, nil))
}

func TestRouterStatusChangeErrors(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createRequest(t, ts.client)

	cases := []struct {
		name string
		user *domain.User
		path string
		body StatusChangeRequest
		want int
	}{
		{"client cannot change status", ts.client, "/api/requests/" + id + "/status", StatusChangeRequest{ToStatus: "approved"}, http.StatusForbidden},
		{"unknown status", ts.admin, "/api/requests/" + id + "/status", StatusChangeRequest{ToStatus: "teleported"}, http.StatusBadRequest},
		{"same status", ts.admin, "/api/requests/" + id + "/status", StatusChangeRequest{ToStatus: "draft"}, http.StatusConflict},
		{"malformed id", ts.admin, "/api/requests/not-a-uuid/status", StatusChangeRequest{ToStatus: "approved"}, http.StatusBadRequest},
		{"unknown id", ts.admin, "/api/requests/0e7b5d6c-0000-4000-8000-000000000000/status", StatusChangeRequest{ToStatus: "approved"}, http.StatusNotFound},
		{"admin changes status", ts.admin, "/api/requests/" + id + "/status", StatusChangeRequest{ToStatus: "approved", Reason: "looks good"}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ts.do(t, tc.user, http.MethodPatch, tc.path, tc.body, nil))
		})
	}
}

func TestRouterRequestVisibility(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createRequest(t, ts.client)

	var detail RequestDetailResponse
	require.Equal(t, http.StatusOK, ts.do(t, ts.client, http.MethodGet, "/api/requests/"+id, nil, &detail))
	assert.Equal(t, id, detail.Request.ID)

	assert.Equal(t, http.StatusForbidden, ts.do(t, ts.other, http.MethodGet, "/api/requests/"+id, nil, nil))
	assert.Equal(t, http.StatusOK, ts.do(t, ts.admin, http.MethodGet, "/api/requests/"+id, nil, nil))
	assert.Equal(t, http.StatusForbidden, ts.do(t, ts.admin, http.MethodPost, "/api/requests", map[string]string{"title": "x"}, nil))
}

func receiptForm(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="ticket.png"`)
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestRouterReceiptsScopedToOwner(t *testing.T) {
	ts := newTestServer(t)

	body, ct := receiptForm(t, map[string]string{
		"companyName": "Papelería Luna",
		"folioNumber": "A-1001",
		"date":        "2026-03-14",
		"description": "Office supplies",
		"totalAmount": "150.50",
	}, []byte("\x89PNG\r\n\x1a\n"))
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/receipts", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, ts.client))

	var created struct {
		Success bool            `json:"success"`
		Data    *domain.Receipt `json:"data"`
	}
	require.Equal(t, http.StatusCreated, ts.send(t, req, &created))
	require.NotNil(t, created.Data)
	id := created.Data.ID

	assert.Equal(t, http.StatusOK, ts.do(t, ts.client, http.MethodGet, "/api/receipts/"+id, nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, ts.other, http.MethodGet, "/api/receipts/"+id, nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, ts.other, http.MethodDelete, "/api/receipts/"+id, nil, nil))

	var list ListResponse
	require.Equal(t, http.StatusOK, ts.do(t, ts.other, http.MethodGet, "/api/receipts", nil, &list))
	assert.Zero(t, list.Count)

	assert.Equal(t, http.StatusBadRequest,
		ts.do(t, ts.client, http.MethodPatch, "/api/receipts/"+id+"/status", ReceiptStatusRequest{Status: "lost"}, nil))
	assert.Equal(t, http.StatusOK,
		ts.do(t, ts.client, http.MethodPatch, "/api/receipts/"+id+"/status", ReceiptStatusRequest{Status: string(domain.ReceiptAccepted)}, nil))
}

func TestRouterNotificationRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.createRequest(t, ts.client)

	var items []domain.Notification
	require.Equal(t, http.StatusOK, ts.do(t, ts.admin, http.MethodGet, "/api/notifications", nil, &items))
	require.Len(t, items, 1)

	var count UnreadCountResponse
	require.Equal(t, http.StatusOK, ts.do(t, ts.admin, http.MethodGet, "/api/notifications/unread-count", nil, &count))
	assert.Equal(t, 1, count.UnreadCount)

	var marked MessageResponse
	require.Equal(t, http.StatusOK, ts.do(t, ts.other, http.MethodPost, "/api/notifications/"+items[0].ID+"/read", nil, &marked))
	assert.False(t, marked.Success)

	require.Equal(t, http.StatusOK, ts.do(t, ts.admin, http.MethodPost, "/api/notifications/"+items[0].ID+"/read", nil, &marked))
	assert.True(t, marked.Success)

	require.Equal(t, http.StatusOK, ts.do(t, ts.admin, http.MethodGet, "/api/notifications/unread-count", nil, &count))
	assert.Zero(t, count.UnreadCount)

	assert.Equal(t, http.StatusForbidden, ts.do(t, ts.client, http.MethodGet, "/api/notifications/status", nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, ts.admin, http.MethodPost, "/api/notifications/test/"+ts.client.ID, nil, nil))
}

func (ts *testServer) wsURL(userID, token string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/notifications/ws/" + userID + "?token=" + token
}

func TestRouterWebSocketRejectsMismatchedToken(t *testing.T) {
	ts := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL(ts.client.ID, ts.token(t, ts.other)), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(ts.wsURL(ts.client.ID, "garbage"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouterWebSocketReceivesStatusPush(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createRequest(t, ts.client)

	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL(ts.client.ID, ts.token(t, ts.client)), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connection_established", hello["type"])
	assert.Equal(t, ts.client.ID, hello["user_id"])

	require.Equal(t, http.StatusOK, ts.do(t, ts.admin, http.MethodPatch, "/api/requests/"+id+"/status",
		StatusChangeRequest{ToStatus: "in_review"}, nil))

	var pushed domain.Notification
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.Equal(t, domain.NotificationStatusUpdated, pushed.Type)
	assert.Equal(t, ts.client.ID, pushed.UserID)
	assert.Equal(t, "in_review", pushed.Data["to_status"])
	assert.Equal(t, id, pushed.Data["request_id"])
}

func TestHealthEndpoints(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{
		"database": PingFunc(func(context.Context) error { return nil }),
		"redis":    nil,
	}, logger.Discard())

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var ready ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ready))
	assert.Equal(t, "ok", ready.Checks["database"])
	assert.Equal(t, "not configured", ready.Checks["redis"])

	h = NewHealthHandler(map[string]Pinger{
		"database": PingFunc(func(context.Context) error { return io.ErrUnexpectedEOF }),
	}, logger.Discard())
	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

package security

import (
	"errors"
	"testing"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/domain"
	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/logger"
)

func TestRolePermissions(t *testing.T) {
	as := NewAuthorizationService(logger.Discard())
	client := &domain.User{ID: "c1", Role: domain.RoleClient}
	admin := &domain.User{ID: "a1", Role: domain.RoleAdmin}

	cases := []struct {
		user *domain.User
		perm Permission
		ok   bool
	}{
		{client, PermCreateRequest, true},
		{admin, PermCreateRequest, false},
		{client, PermChangeStatus, false},
		{admin, PermChangeStatus, true},
		{client, PermSubmitRequest, true},
		{admin, PermSubmitRequest, false},
		{nil, PermReadRequest, false},
	}
	for _, tc := range cases {
		err := as.ValidatePermission(tc.user, tc.perm)
		if tc.ok && err != nil {
			t.Errorf("%v %s: unexpected error %v", tc.user, tc.perm, err)
		}
		if !tc.ok && !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("%v %s: expected forbidden, got %v", tc.user, tc.perm, err)
		}
	}
}

func TestValidateResourceAccess(t *testing.T) {
	as := NewAuthorizationService(logger.Discard())
	perm := ResourcePermission{ResourceType: ResourceRequest, ResourceID: "r1", OwnerID: "c1"}

	if err := as.ValidateResourceAccess(&domain.User{ID: "c1", Role: domain.RoleClient}, perm); err != nil {
		t.Fatalf("owner denied: %v", err)
	}
	if err := as.ValidateResourceAccess(&domain.User{ID: "a1", Role: domain.RoleAdmin}, perm); err != nil {
		t.Fatalf("admin denied: %v", err)
	}
	if err := as.ValidateResourceAccess(&domain.User{ID: "c2", Role: domain.RoleClient}, perm); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for other client, got %v", err)
	}
	if err := as.ValidateResourceAccess(nil, perm); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for anonymous, got %v", err)
	}
}

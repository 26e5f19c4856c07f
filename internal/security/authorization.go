package security

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/aryan0dhankhar/requestdesk/internal/apperr"
	"github.com/aryan0dhankhar/requestdesk/internal/domain"
)

// Permission represents an action permission
type Permission string

const (
	PermCreateRequest          Permission = "create_request"
	PermSubmitRequest          Permission = "submit_request"
	PermReadRequest            Permission = "read_request"
	PermListAllRequests        Permission = "list_all_requests"
	PermUpdateRequest          Permission = "update_request"
	PermAssignRequest          Permission = "assign_request"
	PermChangeStatus           Permission = "change_status"
	PermDeleteRequest          Permission = "delete_request"
	PermCommentRequest         Permission = "comment_request"
	PermAttachFile             Permission = "attach_file"
	PermManageReceipts         Permission = "manage_receipts"
	PermViewNotificationStatus Permission = "view_notification_status"
	PermSendTestNotification   Permission = "send_test_notification"
)

// RolePermissions maps roles to their permissions. Creation and submission
// belong to clients only.
var RolePermissions = map[domain.Role][]Permission{
	domain.RoleAdmin: {
		PermReadRequest,
		PermListAllRequests,
		PermUpdateRequest,
		PermAssignRequest,
		PermChangeStatus,
		PermDeleteRequest,
		PermCommentRequest,
		PermAttachFile,
		PermManageReceipts,
		PermViewNotificationStatus,
		PermSendTestNotification,
	},
	domain.RoleClient: {
		PermCreateRequest,
		PermSubmitRequest,
		PermReadRequest,
		PermUpdateRequest,
		PermDeleteRequest,
		PermCommentRequest,
		PermAttachFile,
		PermManageReceipts,
	},
}

// ResourceType identifies the kind of resource being accessed
type ResourceType string

const (
	ResourceRequest      ResourceType = "request"
	ResourceReceipt      ResourceType = "receipt"
	ResourceNotification ResourceType = "notification"
)

// ResourcePermission describes an access to one owned resource.
type ResourcePermission struct {
	ResourceType ResourceType
	ResourceID   string
	OwnerID      string
}

// AuthorizationService handles role and ownership checks
type AuthorizationService struct {
	logger *slog.Logger
}

func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{logger: logger}
}

func (as *AuthorizationService) HasPermission(role domain.Role, permission Permission) bool {
	return slices.Contains(RolePermissions[role], permission)
}

// ValidatePermission returns a Forbidden error when role lacks permission.
func (as *AuthorizationService) ValidatePermission(user *domain.User, permission Permission) error {
	if user != nil && as.HasPermission(user.Role, permission) {
		return nil
	}
	role := domain.Role("")
	userID := ""
	if user != nil {
		role, userID = user.Role, user.ID
	}
	as.logger.Warn("permission denied",
		slog.String("user_id", userID),
		slog.String("role", string(role)),
		slog.String("permission", string(permission)),
	)
	return apperr.Forbidden(fmt.Sprintf("role %q cannot %s", role, permission))
}

// ValidateResourceAccess lets admins through and otherwise requires ownership.
func (as *AuthorizationService) ValidateResourceAccess(user *domain.User, perm ResourcePermission) error {
	if user == nil {
		return apperr.Unauthorized("authentication required")
	}
	if user.IsAdmin() || perm.OwnerID == user.ID {
		return nil
	}
	as.logger.Warn("resource access denied",
		slog.String("user_id", user.ID),
		slog.String("resource_id", perm.ResourceID),
		slog.String("resource_type", string(perm.ResourceType)),
		slog.String("owner_id", perm.OwnerID),
	)
	return apperr.Forbidden(fmt.Sprintf("you do not have access to this %s", perm.ResourceType))
}

// Package access centralizes the rule deciding who may act on whose notifications.
package access

import (
	"context"
	"log/slog"

	"github.com/cuchu-notify/internal/domain"
)

// CanAccess reports whether actor may act on a resource owned by ownerID.
// Owners always may; elevated roles may act on anyone's resources.
func CanAccess(actor domain.Actor, ownerID string) bool {
	if actor.UserID != "" && actor.UserID == ownerID {
		return true
	}
	return domain.IsElevated(actor.Role)
}

// Policy applies CanAccess and leaves an audit record for every cross-user access it grants.
type Policy struct {
	log *slog.Logger
}

func NewPolicy(logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{log: logger}
}

// Authorize is CanAccess plus the audit trail. action names the operation, e.g. "notification.mark_read".
func (p *Policy) Authorize(ctx context.Context, actor domain.Actor, ownerID, action string) bool {
	if !CanAccess(actor, ownerID) {
		p.log.WarnContext(ctx, "cross-user access denied",
			"actor_id", actor.UserID, "actor_role", actor.Role, "owner_id", ownerID, "action", action)
		return false
	}
	if actor.UserID != ownerID {
		p.log.InfoContext(ctx, "audit: cross-user access",
			"actor_id", actor.UserID, "actor_role", actor.Role, "owner_id", ownerID, "action", action)
	}
	return true
}

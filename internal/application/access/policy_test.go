package access

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/cuchu-notify/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestCanAccess(t *testing.T) {
	cases := []struct {
		name  string
		actor domain.Actor
		owner string
		want  bool
	}{
		{"owner", domain.Actor{UserID: "u1", Role: domain.RoleUser}, "u1", true},
		{"other user", domain.Actor{UserID: "u1", Role: domain.RoleUser}, "u2", false},
		{"admin", domain.Actor{UserID: "a1", Role: domain.RoleAdmin}, "u2", true},
		{"super admin", domain.Actor{UserID: "a1", Role: domain.RoleSuperAdmin}, "u2", true},
		{"system producer", domain.SystemActor, "u2", true},
		{"anonymous", domain.Actor{}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanAccess(tc.actor, tc.owner))
		})
	}
}

func TestAuthorize_AuditsCrossUserAccess(t *testing.T) {
	var buf bytes.Buffer
	p := NewPolicy(slog.New(slog.NewTextHandler(&buf, nil)))

	ok := p.Authorize(context.Background(), domain.Actor{UserID: "a1", Role: domain.RoleAdmin}, "u2", "notification.get")

	assert.True(t, ok)
	assert.Contains(t, buf.String(), "audit: cross-user access")
	assert.Contains(t, buf.String(), "owner_id=u2")
}

func TestAuthorize_SelfAccessIsNotAudited(t *testing.T) {
	var buf bytes.Buffer
	p := NewPolicy(slog.New(slog.NewTextHandler(&buf, nil)))

	assert.True(t, p.Authorize(context.Background(), domain.Actor{UserID: "u1", Role: domain.RoleUser}, "u1", "notification.get"))
	assert.Empty(t, buf.String())
}

func TestAuthorize_Denied(t *testing.T) {
	var buf bytes.Buffer
	p := NewPolicy(slog.New(slog.NewTextHandler(&buf, nil)))

	assert.False(t, p.Authorize(context.Background(), domain.Actor{UserID: "u1", Role: domain.RoleUser}, "u2", "notification.list"))
	assert.Contains(t, buf.String(), "cross-user access denied")
}

package http

import (
	"github.com/cuchu-notify/internal/application/notification"
	"github.com/cuchu-notify/internal/realtime"
	"github.com/cuchu-notify/internal/transport/http/handler"
	"github.com/cuchu-notify/internal/transport/http/middleware"
)

// Deps holds everything the router serves.
type Deps struct {
	Notifications notification.Service
	Producer      handler.Producer
	Hub           *realtime.Hub
	Verifier      middleware.Verifier
}

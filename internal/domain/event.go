package domain

// Realtime event names exchanged over the websocket connection.
const (
	EventNewNotification         = "new-notification"
	EventNotificationRead        = "notification-read"
	EventAllNotificationsRead    = "all-notifications-read"
	EventNotificationUpdated     = "notification-updated"
	EventNotificationArchived    = "notification-archived"
	EventNotificationDeleted     = "notification-deleted"
	EventAllNotificationsDeleted = "all-notifications-deleted"

	EventNewMessage     = "new-message"
	EventUserTyping     = "user-typing"
	EventUserStopTyping = "user-stop-typing"
	EventPresenceUpdate = "presence-update"
	EventError          = "error"
)

// Client-originated realtime actions.
const (
	ActionJoinNotificationRoom  = "join-notification-room"
	ActionLeaveNotificationRoom = "leave-notification-room"
	ActionJoinChatRoom          = "join-chat-room"
	ActionLeaveChatRoom         = "leave-chat-room"
	ActionSendMessage           = "send-message"
	ActionTypingStart           = "typing-start"
	ActionTypingStop            = "typing-stop"
	ActionSetPresence           = "set-presence"
)

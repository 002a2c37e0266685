package domain

// Identity is the authenticated principal behind a request or realtime session.
// Name and Avatar are display fields copied into chat messages.
type Identity struct {
	UserID string `json:"id"`
	Role   string `json:"role,omitempty"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

func (i Identity) Actor() Actor {
	return Actor{UserID: i.UserID, Role: i.Role}
}

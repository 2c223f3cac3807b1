package models

// SessionUser is the analyst identity stored in the session blob
type SessionUser struct {
	ID       string `json:"id" validate:"required"`
	Username string `json:"username"`
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role"`
}

// Session is the locally cached "dashguard_auth" blob
type Session struct {
	User  SessionUser `json:"user"`
	Token string      `json:"token" validate:"required"`
}

package domain

import "time"

type ActivityType string

const (
	ActivitySignup                   ActivityType = "signup"
	ActivityLogin                    ActivityType = "login"
	ActivityLogout                   ActivityType = "logout"
	ActivityProfileUpdate            ActivityType = "profile_update"
	ActivityAccountDelete            ActivityType = "account_delete"
	ActivityPasswordResetRequest     ActivityType = "password_reset_request"
	ActivityVerificationEmailRequest ActivityType = "verification_email_request"
	ActivityProfilePictureUpload     ActivityType = "profile_picture_upload"
	ActivityProfilePictureDelete     ActivityType = "profile_picture_delete"
	ActivityUserDelete               ActivityType = "user_delete"
	ActivityRoleUpdate               ActivityType = "role_update"
)

// ActivityLog is an append-only audit entry describing something a user did.
type ActivityLog struct {
	ID           string
	UserID       string
	Username     string
	ActivityType ActivityType
	IPAddress    string
	UserAgent    string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// internal/model/recipient.go
package model

const (
	RoleStudent = "student"
	RoleStaff   = "staff"
	RoleAdmin   = "admin"

	UserStatusActive = "active"
)

// Recipient is a deliverable user record as seen by the mail dispatcher.
type Recipient struct {
	ID         string `db:"id" json:"_id"`
	Email      string `db:"email" json:"email"`
	FullName   string `db:"full_name" json:"fullName"`
	Role       string `db:"role" json:"role"`
	Status     string `db:"status" json:"status"`
	WantsEmail bool   `db:"email_notifications" json:"emailNotifications"`
}

// CanManageCampaigns reports whether the user may author and inspect campaigns.
func (r *Recipient) CanManageCampaigns() bool {
	return r.Role == RoleStaff || r.Role == RoleAdmin
}

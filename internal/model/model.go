package model

import "time"

type Role string

const (
	RoleStudent  Role = "student"
	RoleStaff    Role = "staff"
	RoleUni      Role = "uni"
	RoleExternal Role = "external"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleStaff, RoleUni, RoleExternal:
		return true
	}
	return false
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Booking is one reserved hour. A request for several slots produces one
// Booking per slot, all carrying the same Token.
type Booking struct {
	ID            int64     `db:"id" json:"id"`
	Role          Role      `db:"role" json:"role"`
	StudentNumber string    `db:"student_number,omitempty" json:"student_number,omitempty"`
	Company       string    `db:"company,omitempty" json:"company,omitempty"`
	Name          string    `db:"name" json:"name"`
	Phone         string    `db:"phone" json:"phone"`
	Email         string    `db:"email" json:"email"`
	Field         string    `db:"field,omitempty" json:"field,omitempty"`
	Date          string    `db:"date" json:"date"`
	StartTime     string    `db:"start_time" json:"start_time"`
	EndTime       string    `db:"end_time" json:"end_time"`
	Participants  *int      `db:"participants,omitempty" json:"participants,omitempty"`
	Reason        string    `db:"reason,omitempty" json:"reason,omitempty"`
	Status        Status    `db:"status" json:"status"`
	Token         string    `db:"token" json:"-"`
	Invoice       string    `db:"invoice,omitempty" json:"invoice,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

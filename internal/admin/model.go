package admin

import (
	"time"

	"github.com/google/uuid"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type Doctor struct {
	ID                  uuid.UUID      `json:"id"`
	Name                string         `json:"name"`
	Email               string         `json:"email"`
	Phone               string         `json:"phone"`
	ProfilePicture      string         `json:"profilePicture,omitempty"`
	RegistrationNumber  string         `json:"registrationNumber"`
	RegistrationCouncil string         `json:"registrationCouncil"`
	Specialties         []string       `json:"specialties"`
	OnboardingCompleted bool           `json:"onboardingCompleted"`
	ApprovalStatus      ApprovalStatus `json:"approvalStatus"`
	RejectionReason     string         `json:"rejectionReason,omitempty"`
	ApprovedBy          *uuid.UUID     `json:"approvedBy,omitempty"`
	ApprovedAt          *time.Time     `json:"approvedAt,omitempty"`
	CreatedAt           time.Time      `json:"createdAt"`
}

type Patient struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	Email               string    `json:"email"`
	Phone               string    `json:"phone"`
	ProfilePicture      string    `json:"profilePicture,omitempty"`
	IsActive            bool      `json:"isActive"`
	OnboardingCompleted bool      `json:"onboardingCompleted"`
	CreatedAt           time.Time `json:"createdAt"`
}

// Status renders IsActive the way the admin dashboard shows it.
func (p Patient) Status() string {
	if p.IsActive {
		return "active"
	}
	return "inactive"
}

type PatientFilter struct {
	Search string
	Active *bool
	Page   int
	Limit  int
}

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

func (f PatientFilter) normalized() PatientFilter {
	if f.Page < 1 {
		f.Page = defaultPage
	}
	if f.Limit < 1 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return f
}

func (f PatientFilter) offset() int {
	return (f.Page - 1) * f.Limit
}

type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

type PatientPage struct {
	Patients   []Patient  `json:"patients"`
	Pagination Pagination `json:"pagination"`
}

type PatientStats struct {
	TotalPatients            int `json:"totalPatients"`
	ActivePatients           int `json:"activePatients"`
	InactivePatients         int `json:"inactivePatients"`
	NewThisMonth             int `json:"newThisMonth"`
	OnboardingCompletionRate int `json:"onboardingCompletionRate"`
}

type PendingDoctors struct {
	Doctors []Doctor `json:"doctors"`
	Total   int      `json:"total"`
}

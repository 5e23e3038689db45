package onboarding

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telecare/internal/auth"
)

const (
	FirstStep = 1
	LastStep  = 4
)

// Progress is the server-side record of how far a user got through the wizard.
type Progress struct {
	CurrentStep    int        `json:"currentStep"`
	Step1Completed bool       `json:"step1Completed"`
	Step2Completed bool       `json:"step2Completed"`
	Step3Completed bool       `json:"step3Completed"`
	Step4Completed bool       `json:"step4Completed"`
	IsCompleted    bool       `json:"isCompleted"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

func NewProgress() Progress {
	return Progress{CurrentStep: FirstStep}
}

// Complete records step as done. CurrentStep never moves backwards and never passes LastStep.
func (p *Progress) Complete(step int, at time.Time) {
	switch step {
	case 1:
		p.Step1Completed = true
	case 2:
		p.Step2Completed = true
	case 3:
		p.Step3Completed = true
	case 4:
		p.Step4Completed = true
	default:
		panic(fmt.Sprintf("onboarding: step %d out of range", step))
	}

	next := min(step+1, LastStep)
	if next > p.CurrentStep {
		p.CurrentStep = next
	}

	if !p.IsCompleted && p.Step1Completed && p.Step2Completed && p.Step3Completed && p.Step4Completed {
		p.IsCompleted = true
		p.CompletedAt = &at
	}
}

// StepData holds the merged fields submitted for each step, keyed "step1".."step4".
type StepData map[string]map[string]any

func stepKey(step int) string {
	return fmt.Sprintf("step%d", step)
}

// Merge overlays fields onto the stored document of step.
func (d StepData) Merge(step int, fields map[string]any) {
	key := stepKey(step)
	cur, ok := d[key]
	if !ok {
		cur = make(map[string]any, len(fields))
		d[key] = cur
	}
	for k, v := range fields {
		cur[k] = v
	}
}

type Onboarding struct {
	UserID    uuid.UUID `json:"userId"`
	Role      auth.Role `json:"role"`
	Progress  Progress  `json:"progress"`
	Data      StepData  `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Status is the payload of GET /api/{role}/onboarding/status.
type Status struct {
	Exists   bool     `json:"exists"`
	Progress Progress `json:"progress"`
}

// ParseRole accepts the two roles that onboard.
func ParseRole(s string) (auth.Role, error) {
	switch auth.Role(s) {
	case auth.RoleDoctor, auth.RolePatient:
		return auth.Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedRole, s)
	}
}

// Package wizard drives the four-step onboarding flow from the client side.
// The server owns progress; the wizard only mirrors it.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hackgods/telecare/internal/auth"
	"github.com/hackgods/telecare/internal/client"
	"github.com/hackgods/telecare/internal/onboarding"
	"github.com/hackgods/telecare/internal/result"
)

var (
	ErrNotResumed = errors.New("wizard not resumed")
	ErrDone       = errors.New("onboarding already completed")
)

type API interface {
	OnboardingStatus(ctx context.Context, role auth.Role) result.Result[onboarding.Status]
	SaveOnboardingStep(ctx context.Context, role auth.Role, step int, data map[string]any) result.Result[onboarding.Progress]
}

// Field is one required input of a step. Rule is a validator tag.
type Field struct {
	Key   string
	Label string
	Rule  string
}

const (
	present  = "required"
	nonEmpty = "required,min=1"
)

type Step struct {
	Number   int
	Title    string
	Required []Field
}

var doctorSteps = []Step{
	{1, "Professional Information", []Field{
		{"firstName", "First name", present},
		{"lastName", "Last name", present},
		{"medicalRegistrationNumber", "Medical registration number", present},
		{"registrationCouncil", "Registration council", present},
	}},
	{2, "Professional Details", []Field{
		{"specialties", "At least one specialty", nonEmpty},
		{"shortBio", "Short bio", present},
	}},
	{3, "Practice Details", []Field{
		{"consultationFee", "Consultation fee", nonEmpty},
	}},
	{4, "Documents & Verification", []Field{
		{"verificationDocuments", "At least one document", nonEmpty},
	}},
}

var patientSteps = []Step{
	{1, "Basic Health Profile", []Field{
		{"dateOfBirth", "Date of birth", present},
		{"gender", "Gender", present},
	}},
	{2, "Medical History", nil},
	{3, "Current Health Status", nil},
	{4, "Telemedicine Preferences", []Field{
		{"preferredLanguage", "Preferred language", present},
	}},
}

// Steps lists the wizard pages for role.
func Steps(role auth.Role) []Step {
	if role == auth.RoleDoctor {
		return doctorSteps
	}
	return patientSteps
}

// DashboardRoute is where a finished wizard sends the user.
func DashboardRoute(role auth.Role) string {
	if role == auth.RoleDoctor {
		return "/doctor-dashboard"
	}
	return "/patient-dashboard"
}

type Wizard struct {
	role     auth.Role
	api      API
	notifier client.Notifier

	resumed  bool
	current  int
	progress onboarding.Progress
}

func New(role auth.Role, api API, notifier client.Notifier) (*Wizard, error) {
	role, err := onboarding.ParseRole(string(role))
	if err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = client.NopNotifier{}
	}
	return &Wizard{role: role, api: api, notifier: notifier, current: onboarding.FirstStep}, nil
}

// Resume loads progress from the server and positions the wizard on its current step.
func (w *Wizard) Resume(ctx context.Context) error {
	r := w.api.OnboardingStatus(ctx, w.role)
	if !r.IsOk() {
		w.notifier.Toast(client.ToastError, "Failed to load onboarding status. Please try again.")
		return r.Err()
	}
	w.adopt(r.Data.Progress)
	w.resumed = true
	return nil
}

func (w *Wizard) adopt(p onboarding.Progress) {
	w.progress = p
	w.current = min(max(p.CurrentStep, onboarding.FirstStep), onboarding.LastStep)
}

func (w *Wizard) CurrentStep() int { return w.current }

func (w *Wizard) Step() Step { return Steps(w.role)[w.current-1] }

func (w *Wizard) Progress() onboarding.Progress { return w.progress }

func (w *Wizard) Done() bool { return w.progress.IsCompleted }

// RedirectRoute is empty until the wizard is done.
func (w *Wizard) RedirectRoute() string {
	if !w.Done() {
		return ""
	}
	return DashboardRoute(w.role)
}

// Back moves to the previous page without touching saved progress.
func (w *Wizard) Back() {
	if w.current > onboarding.FirstStep {
		w.current--
	}
}

// Submit saves data for the current step. A failed save leaves the wizard on
// the same step so the user can retry.
func (w *Wizard) Submit(ctx context.Context, data map[string]any) error {
	if !w.resumed {
		return ErrNotResumed
	}
	if w.Done() {
		return ErrDone
	}

	step := w.Step()
	if err := validate(step, data); err != nil {
		w.notifier.Toast(client.ToastError, err.Error())
		return err
	}

	r := w.api.SaveOnboardingStep(ctx, w.role, step.Number, data)
	if !r.IsOk() {
		msg := r.Error
		if msg == "" {
			msg = "Failed to save step data"
		}
		w.notifier.Toast(client.ToastError, msg)
		return r.Err()
	}

	w.adopt(r.Data)
	w.notifier.Toast(client.ToastSuccess, fmt.Sprintf("Step %d saved successfully!", step.Number))
	if w.Done() {
		w.notifier.Toast(client.ToastSuccess, "Onboarding completed! Redirecting to dashboard...")
	}
	return nil
}

var fieldValidator = validator.New()

func validate(step Step, data map[string]any) error {
	for _, f := range step.Required {
		v := data[f.Key]
		if str, ok := v.(string); ok {
			v = strings.TrimSpace(str)
		}
		if err := fieldValidator.Var(v, f.Rule); err != nil {
			return &client.ValidationError{Field: f.Key, Message: f.Label + " is required"}
		}
	}
	return nil
}

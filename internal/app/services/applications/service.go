// Package applications orchestrates the application lifecycle: creation,
// status transitions with role gating, and the notification and email
// side effects each transition fans out.
package applications

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/nexushub/marketplace/internal/app/domain/actor"
	"github.com/nexushub/marketplace/internal/app/domain/application"
	"github.com/nexushub/marketplace/internal/app/domain/notification"
	"github.com/nexushub/marketplace/internal/app/domain/project"
	"github.com/nexushub/marketplace/internal/app/services/notifications"
	"github.com/nexushub/marketplace/internal/app/storage"
	"github.com/nexushub/marketplace/internal/errors"
	"github.com/nexushub/marketplace/internal/logging"
	"github.com/nexushub/marketplace/internal/mailer"
	"github.com/nexushub/marketplace/internal/metrics"
)

// maxTransitionRetries bounds how often a transition is re-evaluated
// after losing a version race.
const maxTransitionRetries = 3

// sideEffectTimeout bounds each detached notification or email task.
const sideEffectTimeout = 10 * time.Second

// Service owns the application lifecycle.
type Service struct {
	apps     storage.ApplicationStore
	projects storage.ProjectCatalog
	users    storage.UserDirectory
	notifier *notifications.Service
	mail     mailer.Mailer
	metrics  *metrics.Metrics
	log      *logging.Logger
}

// NewService wires the service. metrics may be nil.
func NewService(
	apps storage.ApplicationStore,
	projects storage.ProjectCatalog,
	users storage.UserDirectory,
	notifier *notifications.Service,
	mail mailer.Mailer,
	m *metrics.Metrics,
	log *logging.Logger,
) *Service {
	return &Service{
		apps:     apps,
		projects: projects,
		users:    users,
		notifier: notifier,
		mail:     mail,
		metrics:  m,
		log:      log,
	}
}

// Submit creates a pending application for the calling student.
func (s *Service) Submit(ctx context.Context, act actor.Actor, projectID, coverLetter string) (*application.Application, error) {
	if act.Role != actor.RoleStudent {
		return nil, errors.Unauthorized("only students can apply to projects")
	}

	proj, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("project not found")
		}
		return nil, errors.Internal("failed to load project", err)
	}
	if proj.Status != project.StatusOpen {
		return nil, errors.InvalidState("project is not open for applications")
	}

	app := &application.Application{
		ProjectID:   projectID,
		ApplicantID: act.ID,
		CoverLetter: coverLetter,
		Status:      application.StatusPending,
	}
	if err := s.apps.CreateApplication(ctx, app); err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return nil, errors.Conflict("you have already applied to this project")
		}
		return nil, errors.Internal("failed to create application", err)
	}

	s.async(ctx, "notify-new-application", func(ctx context.Context) {
		s.notifyNewApplication(ctx, proj, act.ID)
	})
	return app, nil
}

// Transition moves an application to target on behalf of act. The role
// gate is checked before the transition table, so a forbidden actor gets
// an authorization error even for an unreachable target. A lost version
// race is re-evaluated against the fresh state.
func (s *Service) Transition(ctx context.Context, act actor.Actor, applicationID string, target application.Status, note *string) (*application.Application, error) {
	if !target.Valid() {
		return nil, errors.Validation(fmt.Sprintf("invalid status %q", target))
	}

	for attempt := 0; attempt < maxTransitionRetries; attempt++ {
		app, err := s.apps.GetApplication(ctx, applicationID)
		if err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				return nil, errors.NotFound("application not found")
			}
			return nil, errors.Internal("failed to load application", err)
		}

		proj, err := s.projects.GetProject(ctx, app.ProjectID)
		if err != nil {
			return nil, errors.Internal("failed to load project", err)
		}

		if err := authorizeTransition(act, app, proj, target); err != nil {
			return nil, err
		}

		if !app.Status.CanTransitionTo(target) {
			return nil, errors.InvalidState(
				fmt.Sprintf("cannot transition from %s to %s", app.Status, target)).
				WithDetails("current_status", app.Status).
				WithDetails("attempted_status", target).
				WithDetails("allowed", app.Status.AllowedTargets())
		}

		var submissionNote, revisionNote *string
		switch target {
		case application.StatusSubmitted:
			submissionNote = note
		case application.StatusRevisionRequested:
			revisionNote = note
		}

		updated, err := s.apps.TransitionApplication(ctx, applicationID, app.Version, target, submissionNote, revisionNote)
		if stderrors.Is(err, storage.ErrStale) {
			// Lost a version race; re-evaluate against the new state.
			continue
		}
		if err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				return nil, errors.NotFound("application not found")
			}
			return nil, errors.Internal("failed to update application", err)
		}

		if s.metrics != nil {
			s.metrics.RecordTransition(string(target))
		}
		s.log.WithContext(ctx).WithFields(map[string]any{
			"application_id": updated.ID,
			"from":           app.Status,
			"to":             target,
		}).Info("application transitioned")

		s.async(ctx, "notify-transition", func(ctx context.Context) {
			s.notifyTransition(ctx, updated, proj, target)
		})
		return updated, nil
	}
	return nil, errors.Conflict("application was updated concurrently, please retry")
}

// ListByProject returns every application for a project. Only the
// project owner or an admin may see them.
func (s *Service) ListByProject(ctx context.Context, act actor.Actor, projectID string) ([]*application.Application, error) {
	proj, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("project not found")
		}
		return nil, errors.Internal("failed to load project", err)
	}
	if proj.OwnerID != act.ID && !act.IsAdmin() {
		return nil, errors.Unauthorized("only the project owner can view its applications")
	}

	apps, err := s.apps.ListApplicationsByProject(ctx, projectID)
	if err != nil {
		return nil, errors.Internal("failed to list applications", err)
	}
	if apps == nil {
		apps = []*application.Application{}
	}
	return apps, nil
}

// ListMine returns the caller's own applications.
func (s *Service) ListMine(ctx context.Context, act actor.Actor) ([]*application.Application, error) {
	apps, err := s.apps.ListApplicationsByApplicant(ctx, act.ID)
	if err != nil {
		return nil, errors.Internal("failed to list applications", err)
	}
	if apps == nil {
		apps = []*application.Application{}
	}
	return apps, nil
}

// authorizeTransition enforces who may request the target status.
func authorizeTransition(act actor.Actor, app *application.Application, proj *project.Project, target application.Status) error {
	switch {
	case target.RequiresOwner():
		if proj.OwnerID != act.ID && !act.IsAdmin() {
			return errors.Unauthorized("only the project owner can set this status")
		}
	case target.RequiresApplicant():
		if app.ApplicantID != act.ID {
			return errors.Unauthorized("only the applicant can set this status")
		}
	default:
		// pending is never a transition target.
		return errors.Unauthorized("status cannot be requested")
	}
	return nil
}

// async runs fn detached from the request. Panics are contained and
// logged; a side effect never fails the operation that spawned it.
func (s *Service) async(ctx context.Context, task string, fn func(ctx context.Context)) {
	traceID := logging.GetTraceID(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.WithField("task", task).Errorf("panic in background task: %v", r)
			}
		}()
		bg, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if traceID != "" {
			bg = logging.WithTraceID(bg, traceID)
		}
		fn(bg)
	}()
}

func (s *Service) notifyNewApplication(ctx context.Context, proj *project.Project, applicantID string) {
	applicant, err := s.users.GetUser(ctx, applicantID)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("failed to load applicant for notification")
		return
	}

	_, err = s.notifier.Notify(ctx, proj.OwnerID,
		"New application",
		fmt.Sprintf("%s applied to your project %q", applicant.DisplayName(), proj.Title),
		notification.TypeApplication,
		"/projects/"+proj.ID+"/applications")
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("failed to notify project owner")
	}

	owner, err := s.users.GetUser(ctx, proj.OwnerID)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("failed to load project owner for email")
		return
	}
	subject, body := mailer.NewApplicationEmail(owner.DisplayName(), applicant.DisplayName(), proj.Title)
	if err := s.mail.Send(ctx, owner.Email, subject, body); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("failed to send new application email")
	}
}

func (s *Service) notifyTransition(ctx context.Context, app *application.Application, proj *project.Project, target application.Status) {
	switch {
	case target.RequiresOwner():
		// An owner decision informs the applicant.
		_, err := s.notifier.Notify(ctx, app.ApplicantID,
			"Application update",
			fmt.Sprintf("Your application for %q is now %s", proj.Title, target),
			notification.TypeApplication,
			"/applications/"+app.ID)
		if err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("failed to notify applicant")
		}

		applicant, err := s.users.GetUser(ctx, app.ApplicantID)
		if err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("failed to load applicant for email")
			return
		}
		subject, body := mailer.ApplicationStatusEmail(applicant.DisplayName(), proj.Title, string(target))
		if err := s.mail.Send(ctx, applicant.Email, subject, body); err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("failed to send status email")
		}

	case target == application.StatusSubmitted:
		// A submission informs the project owner.
		_, err := s.notifier.Notify(ctx, proj.OwnerID,
			"Work submitted",
			fmt.Sprintf("Work was submitted for review on %q", proj.Title),
			notification.TypeReview,
			"/projects/"+proj.ID+"/applications")
		if err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("failed to notify project owner")
		}

		owner, ownerErr := s.users.GetUser(ctx, proj.OwnerID)
		applicant, applicantErr := s.users.GetUser(ctx, app.ApplicantID)
		if ownerErr != nil || applicantErr != nil {
			s.log.WithContext(ctx).Warn("failed to load users for submission email")
			return
		}
		subject, body := mailer.SubmissionEmail(owner.DisplayName(), applicant.DisplayName(), proj.Title)
		if err := s.mail.Send(ctx, owner.Email, subject, body); err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("failed to send submission email")
		}
	}
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/portalcapture/internal/model"
)

// Authenticator performs the portal login handshake.
type Authenticator interface {
	Authenticate(ctx context.Context, cred model.Credential) (*model.AuthResult, error)
}

// Capturer renders an authenticated page into a stored artifact.
type Capturer interface {
	Capture(ctx context.Context, auth *model.AuthResult, identity, targetURL string, kind model.ArtifactKind) (*model.CaptureArtifact, error)
}

// AuthenticateStep logs in with the job's credential.
//
//	INIT -> AUTHENTICATING -> AUTHENTICATED
//	                       -> REJECTED   (model.ErrAuthenticationFailed)
//	                       -> AUTH_ERROR (network, protocol or captcha error)
type AuthenticateStep struct {
	auth   Authenticator
	logger *slog.Logger
}

// NewAuthenticateStep creates an AuthenticateStep.
func NewAuthenticateStep(auth Authenticator, logger *slog.Logger) *AuthenticateStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthenticateStep{auth: auth, logger: logger}
}

// Name returns the step name.
func (s *AuthenticateStep) Name() string {
	return "authenticate"
}

// Do executes the step. A rejected login is turned into
// model.ErrAuthenticationFailed here; the authenticator itself treats it
// as a normal result.
func (s *AuthenticateStep) Do(ctx context.Context, job *model.CrawlJob) error {
	if err := job.Transition(model.StateInit, model.StateAuthenticating); err != nil {
		return err
	}

	result, err := s.auth.Authenticate(ctx, job.Credential)
	if err != nil {
		return s.fail(job, model.StateAuthError, err)
	}
	job.Auth = result

	if !result.Authenticated() {
		s.logger.Info("portal rejected login", "credential", job.Credential)
		return s.fail(job, model.StateRejected,
			fmt.Errorf("%w: portal did not accept identity %q", model.ErrAuthenticationFailed, job.Credential.Identity))
	}

	s.logger.Debug("login accepted", "credential", job.Credential)
	return job.Transition(model.StateAuthenticating, model.StateAuthenticated)
}

func (s *AuthenticateStep) fail(job *model.CrawlJob, to model.JobState, err error) error {
	if ferr := job.Fail(model.StateAuthenticating, to, err); ferr != nil {
		return ferr
	}
	return err
}

// CaptureStep renders the target page once the job is authenticated.
//
//	AUTHENTICATED -> CAPTURING -> DONE
//	                           -> CAPTURE_FAILED
type CaptureStep struct {
	capturer Capturer
	logger   *slog.Logger
}

// NewCaptureStep creates a CaptureStep.
func NewCaptureStep(capturer Capturer, logger *slog.Logger) *CaptureStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptureStep{capturer: capturer, logger: logger}
}

// Name returns the step name.
func (s *CaptureStep) Name() string {
	return "capture"
}

// Do executes the step. It refuses to run unless the job is AUTHENTICATED.
func (s *CaptureStep) Do(ctx context.Context, job *model.CrawlJob) error {
	if err := job.Transition(model.StateAuthenticated, model.StateCapturing); err != nil {
		return err
	}

	a, err := s.capturer.Capture(ctx, job.Auth, job.Credential.Identity, job.TargetURL, job.Kind)
	if err != nil {
		if ferr := job.Fail(model.StateCapturing, model.StateCaptureFailed, err); ferr != nil {
			return ferr
		}
		return err
	}
	job.Artifact = a

	s.logger.Info("artifact captured", "job", job.ID, "path", a.TargetPath)
	return job.Transition(model.StateCapturing, model.StateDone)
}

package scrape

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/portalcapture/internal/artifact"
	"github.com/nao1215/portalcapture/internal/captcha"
	"github.com/nao1215/portalcapture/internal/config"
	"github.com/nao1215/portalcapture/internal/isolate"
	"github.com/nao1215/portalcapture/internal/model"
	"github.com/nao1215/portalcapture/internal/pipeline"
	"github.com/nao1215/portalcapture/internal/portal"
	"github.com/nao1215/portalcapture/internal/render"
)

// NewJobFunc returns the function the worker process runs for a request.
func NewJobFunc(logger *slog.Logger) isolate.JobFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req *isolate.Request) (*isolate.Outcome, error) {
		return runJob(ctx, req, logger)
	}
}

func runJob(ctx context.Context, req *isolate.Request, logger *slog.Logger) (*isolate.Outcome, error) {
	logger = logger.With("job", req.JobID)

	p, err := BuildPipeline(req.Config, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrExecution, err)
	}

	job := model.NewCrawlJob(req.JobID, req.Credential(), req.TargetURL, model.ArtifactKind(req.Kind))
	if err := p.Execute(ctx, job); err != nil {
		return &isolate.Outcome{JobID: job.ID, State: job.State}, err
	}
	if job.Artifact == nil {
		return &isolate.Outcome{JobID: job.ID, State: job.State},
			fmt.Errorf("%w: job finished in %s without an artifact", model.ErrExecution, job.State)
	}

	logger.Debug("job finished", "state", string(job.State), "duration", job.Duration())
	return &isolate.Outcome{
		JobID:        job.ID,
		OK:           true,
		State:        job.State,
		ArtifactPath: job.Artifact.TargetPath,
		Digest:       job.Artifact.Digest,
	}, nil
}

// BuildPipeline wires the authenticate and capture steps for cfg.
// Every component is created fresh, so a pipeline holds exactly one
// portal session.
func BuildPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := portal.NewHTTPClient(portal.ClientOptions{
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
		ProxyURL:  cfg.ProxyURL,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	})
	if err != nil {
		return nil, err
	}

	resolver, err := captcha.New(cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	predicate, err := portal.PredicateFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	authOpts := []portal.Option{
		portal.WithFormFields(portal.FormFields{
			Identity: cfg.IdentityField,
			Secret:   cfg.SecretField,
			Captcha:  cfg.CaptchaField,
		}),
		portal.WithPredicate(predicate),
		portal.WithCaptchaImageURL(cfg.ResolvedCaptchaImageURL()),
		portal.WithLogger(logger),
	}
	if cfg.MaxBodySize > 0 {
		authOpts = append(authOpts, portal.WithMaxBodySize(cfg.MaxBodySize))
	}
	auth := portal.NewAuthenticator(client, cfg.LoginURL, resolver, authOpts...)

	renderer, err := render.New(cfg, nil)
	if err != nil {
		return nil, err
	}
	capturer := render.NewCapturer(renderer, artifact.NewStore(cfg.StorageDir),
		render.WithWait(cfg.RenderWait),
		render.WithFullPage(cfg.RenderFullPage),
		render.WithRenderTimeout(cfg.RenderTimeout),
		render.WithCapturerLogger(logger),
	)

	p := pipeline.New(pipeline.WithLogger(logger))
	p.AddSteps(
		pipeline.NewAuthenticateStep(auth, logger),
		pipeline.NewCaptureStep(capturer, logger),
	)
	return p, nil
}

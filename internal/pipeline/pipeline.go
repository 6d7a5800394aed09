// Package pipeline runs the image reply flow for one webhook event:
// filter, fetch an image, upload it, reply with it.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/samber/lo"

	"imagebot/internal/domain"
	"imagebot/internal/metrics"
)

// Config wires a Pipeline. Every field is read-only after construction and
// shared by concurrent invocations.
type Config struct {
	Trigger         string
	IgnoredAccounts []int64
	Images          domain.ImageSource
	Uploader        domain.FileUploader
	Replier         domain.Replier
	Logger          *slog.Logger
}

type Pipeline struct {
	trigger  string
	ignored  []int64
	images   domain.ImageSource
	uploader domain.FileUploader
	replier  domain.Replier
	logger   *slog.Logger
}

// Result is where an invocation stopped.
type Result struct {
	State  domain.State
	FileID domain.FileID
}

func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		trigger:  cfg.Trigger,
		ignored:  append([]int64(nil), cfg.IgnoredAccounts...),
		images:   cfg.Images,
		uploader: cfg.Uploader,
		replier:  cfg.Replier,
		logger:   cfg.Logger,
	}
}

// Handle processes one validated event. Steps run strictly in order and the
// first failure ends the invocation; nothing is retried. A reply failure
// after a successful upload leaves the uploaded file on the platform.
func (p *Pipeline) Handle(ctx context.Context, ev domain.InboundEvent) (res Result, err error) {
	logger := p.logger.With("account_id", ev.AccountID, "room_id", ev.RoomID, "message_id", ev.MessageID)
	defer func() { metrics.Outcome(string(res.State)).Inc() }()

	if lo.Contains(p.ignored, ev.AccountID) {
		logger.Info("message from ignored account")
		return Result{State: domain.StateIgnored}, nil
	}

	if !ev.Matches(p.trigger) {
		logger.Debug("message does not match trigger", "body", ev.Preview(40))
		return Result{State: domain.StateNotTriggered}, nil
	}

	if err := ev.Validate(); err != nil {
		return Result{State: domain.StateReceived}, err
	}

	logger.Info("trigger received")
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	file, err := p.images.Fetch(ctx)
	if err != nil {
		return p.fail(logger, domain.StateTriggered, err)
	}

	fileID, err := p.uploader.UploadFile(ctx, ev.RoomID, file)
	if err != nil {
		return p.fail(logger, domain.StateDownloaded, err)
	}

	if err := p.replier.Reply(ctx, ev, fileID); err != nil {
		logger.Warn("uploaded file left without reply", "file_id", fileID)
		res, err = p.fail(logger, domain.StateUploaded, err)
		res.FileID = fileID
		return res, err
	}

	logger.Info("image reply sent", "file_id", fileID)
	return Result{State: domain.StateReplied, FileID: fileID}, nil
}

// fail logs err and records which step broke. Errors that do not name their
// step are attributed to the step following the last state reached.
func (p *Pipeline) fail(logger *slog.Logger, reached domain.State, err error) (Result, error) {
	step, ok := domain.FailedStep(err)
	if !ok {
		step = stepAfter(reached)
		err = &domain.StepError{Step: step, Cause: err}
	}
	metrics.StepFailure(string(step)).Inc()
	logger.Error("image pipeline failed", "step", step, "reached", reached, "err", err)
	return Result{State: domain.StateErrored}, err
}

func stepAfter(s domain.State) domain.Step {
	switch s {
	case domain.StateTriggered:
		return domain.StepDownload
	case domain.StateDownloaded:
		return domain.StepUpload
	default:
		return domain.StepReply
	}
}

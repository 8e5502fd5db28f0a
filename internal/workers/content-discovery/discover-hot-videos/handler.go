package discoverhotvideos

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"divine-dvm/internal/common/config"
	"divine-dvm/internal/common/dvm"
	"divine-dvm/internal/common/errors"
	"divine-dvm/internal/common/logger"
	"divine-dvm/internal/common/metrics"
	"divine-dvm/internal/common/nostr"
	"divine-dvm/internal/common/observability"
)

const (
	TaskType = config.DiscoverHotVideosWorker

	processingMessage = "Fetching hot videos from diVine..."
	successMessage    = "Hot videos delivered"
	resultAlt         = "Hot videos on diVine"
)

// HandlerDeps are the shared handles a job uses. Fetcher and Emitter are
// safe for concurrent use by many jobs.
type HandlerDeps struct {
	Fetcher       Fetcher
	Emitter       EventEmitter
	Observability *observability.Observability
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Deps         HandlerDeps
	Logger       logger.Logger
}

// Handler runs the job state machine for content discovery requests.
type Handler struct {
	config     *Config
	validator  *RequestValidator
	querier    *HotContentQuerier
	feedback   *FeedbackEmitter
	emitter    EventEmitter
	obs        *observability.Observability
	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", TaskType, err)
	}
	if opts.Deps.Fetcher == nil {
		return nil, fmt.Errorf("%s: fetcher is required", TaskType)
	}
	if opts.Deps.Emitter == nil {
		return nil, fmt.Errorf("%s: emitter is required", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	return &Handler{
		config:     cfg,
		validator:  NewRequestValidator(cfg),
		querier:    NewHotContentQuerier(opts.Deps.Fetcher, cfg, opts.Deps.Observability, log),
		feedback:   NewFeedbackEmitter(opts.Deps.Emitter),
		emitter:    opts.Deps.Emitter,
		obs:        opts.Deps.Observability,
		errHandler: errors.NewErrorHandler(log),
		logger:     log,
	}, nil
}

func (h *Handler) Config() *Config { return h.config }

// Handle implements dvm.JobHandler. Rejected and abandoned requests are
// not reported as errors since the requester already got what they will
// get.
func (h *Handler) Handle(ctx context.Context, ev nostr.Event) error {
	report := h.Process(ctx, ev)
	if report.Err == nil ||
		stderrors.Is(report.Err, errors.ErrValidation) ||
		stderrors.Is(report.Err, errors.ErrJobAbandoned) {
		return nil
	}
	return report.Err
}

// Process runs one request through the state machine and reports how far
// it got. ctx is the process lifetime: once it ends, a job that has not
// reached Formatting is abandoned without publishing anything further.
func (h *Handler) Process(ctx context.Context, ev nostr.Event) *Report {
	start := time.Now()
	sm := newStateMachine()
	report := &Report{JobID: ev.ID}
	defer func() {
		report.State = sm.State()
		report.History = sm.History()
		report.Duration = time.Since(start)
	}()

	if AddressedElsewhere(ev, h.emitter.PublicKey()) {
		report.Ignored = true
		h.logger.Debug("request addressed to another service provider", map[string]interface{}{"jobId": ev.ID})
		return report
	}

	ctx, span := h.obs.StartSpan(ctx, TaskType+".process",
		attribute.String("job.id", ev.ID),
		attribute.String("job.requester", ev.PubKey),
	)
	defer span.End()

	metrics.WorkerJobsReceived.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	log := h.logger.WithFields(map[string]interface{}{"jobId": ev.ID, "requester": ev.PubKey})
	log.Info("processing job", nil)

	// Publishes outlive shutdown so a job past Querying can finish cleanly.
	pubParent, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.config.Timeout)
	defer cancel()

	j := &job{h: h, sm: sm, report: report, log: log, pubParent: pubParent}
	j.run(ctx, ev)

	status := string(sm.State())
	h.obs.RecordJobProcessed(ctx, status)
	h.obs.RecordJobDuration(ctx, time.Since(start), status)
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())

	if report.Err != nil {
		span.RecordError(report.Err)
		span.SetStatus(codes.Error, string(errors.AsStandardError(report.Err).Code))
	}
	span.SetAttributes(attribute.String("job.state", status), attribute.Int("job.items", report.Items))
	return report
}

// Execute queries upstream and builds the result without publishing.
func (h *Handler) Execute(ctx context.Context, req *JobRequest) (JobResult, *QueryOutcome, error) {
	limit := EffectiveLimit(req.Params, h.config.DefaultMaxResults, h.config.MaxResultsCeiling)
	outcome, err := h.querier.Query(ctx, QueryRequest{
		Kind:    h.config.TargetKind,
		Search:  h.config.SearchDirective,
		Limit:   limit,
		Timeout: h.config.QueryTimeout,
	})
	if err != nil {
		return JobResult{}, outcome, err
	}
	return BuildJobResult(req.ID, outcome.Items, limit), outcome, nil
}

// job is the per-request state of one Process call.
type job struct {
	h         *Handler
	sm        *stateMachine
	report    *Report
	log       logger.Logger
	pubParent context.Context
	req       *JobRequest
}

func (j *job) run(ctx context.Context, ev nostr.Event) {
	h := j.h

	j.advance(StateValidating)
	req, err := h.validator.Validate(ev)
	if err != nil {
		j.req = &JobRequest{ID: ev.ID, Requester: ev.PubKey, Raw: ev}
		j.fail(err)
		return
	}
	j.req = req
	j.report.Fallbacks = req.Params.Fallbacks
	for _, fb := range req.Params.Fallbacks {
		metrics.ParamFallbacks.WithLabelValues(fb.Name).Inc()
		j.log.Warn("parameter fallback", map[string]interface{}{
			"param":  fb.Name,
			"value":  fb.Value,
			"reason": fb.Reason,
		})
	}

	if ctx.Err() != nil {
		j.abandon(errors.NewJobAbandonedError(string(StateValidating)))
		return
	}

	j.advance(StateProcessing)
	if err := j.emitFeedback(dvm.StatusProcessing, processingMessage); err != nil {
		j.fail(errors.NewPublishError("processing feedback", err))
		return
	}

	j.advance(StateQuerying)
	result, outcome, err := h.Execute(ctx, req)
	if err != nil {
		if stderrors.Is(err, errors.ErrJobAbandoned) {
			j.abandon(err)
			return
		}
		j.fail(err)
		return
	}
	j.report.TimedOut = outcome.TimedOut

	j.advance(StateFormatting)
	payload, err := FormatPayload(result, req.Output)
	if err != nil {
		j.fail(errors.NewInternalError(err))
		return
	}

	j.advance(StatePublishing)
	pubCtx, cancel := context.WithTimeout(j.pubParent, h.config.PublishTimeout)
	_, err = h.emitter.Emit(pubCtx, dvm.BuildResult(req.Raw, payload, resultAlt))
	cancel()
	if err != nil {
		j.fail(errors.NewPublishError("result", err))
		return
	}
	j.report.Items = len(result.Items)
	metrics.ResultItems.Observe(float64(len(result.Items)))

	j.advance(StateDone)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	if err := j.emitFeedback(dvm.StatusSuccess, successMessage); err != nil {
		// the result is out; the job stays done
		j.log.Warn("failed to publish success feedback", map[string]interface{}{"error": err})
	}
	j.log.Info("job completed", map[string]interface{}{
		"items":    len(result.Items),
		"timedOut": outcome.TimedOut,
		"received": outcome.Received,
		"skipped":  outcome.Skipped,
	})
}

func (j *job) advance(to State) {
	if err := j.sm.Transition(to); err != nil {
		// unreachable with the fixed flow in run
		panic(err)
	}
}

func (j *job) emitFeedback(status dvm.JobStatus, message string) error {
	ctx, cancel := context.WithTimeout(j.pubParent, j.h.config.PublishTimeout)
	defer cancel()
	if err := j.h.feedback.Emit(ctx, j.req, status, message); err != nil {
		return err
	}
	j.report.Feedback = append(j.report.Feedback, status)
	return nil
}

// fail moves to Failed and sends error feedback once, best effort.
func (j *job) fail(err error) {
	from := j.sm.State()
	j.advance(StateFailed)
	stdErr := j.h.errHandler.HandleJobError(j.req.ID, string(from), err)
	j.report.Err = stdErr
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()

	if ferr := j.emitFeedback(dvm.StatusError, stdErr.FeedbackMessage()); ferr != nil {
		j.log.Warn("failed to publish error feedback", map[string]interface{}{"error": ferr})
	}
}

func (j *job) abandon(err error) {
	from := j.sm.State()
	j.advance(StateAbandoned)
	j.report.Err = j.h.errHandler.HandleJobError(j.req.ID, string(from), err)
}

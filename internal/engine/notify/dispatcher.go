package notify

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"dingbot/internal/engine/dingtalk"
	"dingbot/internal/pkg/metrics"
)

// Outcome label for sends that never reached the builder.
const outcomeUnresolved = "unresolved_robot"

// unresolvedLabel is the robot label for sends to names that do not resolve,
// so callers cannot mint new series.
const unresolvedLabel = ""

// Dispatcher is the entry point for callers: it resolves the robot, builds
// and posts the message, logs the outcome and records metrics.
type Dispatcher struct {
	resolver   *Resolver
	queue      Queue
	metrics    *metrics.Metrics
	httpClient *http.Client
}

func NewDispatcher(resolver *Resolver, queue Queue, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		resolver:   resolver,
		queue:      queue,
		metrics:    m,
		httpClient: &http.Client{Timeout: dingtalk.DefaultTimeout},
	}
}

// Notify sends one notification synchronously and returns the outcome.
func (d *Dispatcher) Notify(ctx context.Context, robot string, inv dingtalk.Invocation) (*dingtalk.Ack, error) {
	return d.notify(ctx, "", robot, inv)
}

// Dispatch sends one notification and discards the error after logging it.
func (d *Dispatcher) Dispatch(ctx context.Context, robot string, inv dingtalk.Invocation) {
	d.notify(ctx, "", robot, inv)
}

// Process runs a queued job.
func (d *Dispatcher) Process(ctx context.Context, job *Job) {
	d.notify(ctx, job.ID, job.Robot, job.Invocation)
}

// Enqueue validates the invocation and queues it for the worker pool.
// Unsupported message types and unknown robots are rejected here so callers
// get the error.
func (d *Dispatcher) Enqueue(ctx context.Context, robot string, inv dingtalk.Invocation) (*Job, error) {
	if _, err := inv.Notification(); err != nil {
		return nil, err
	}
	if _, err := d.resolver.Resolve(robot); err != nil {
		return nil, err
	}
	if d.queue == nil {
		return nil, ErrQueueClosed
	}

	job := NewJob(robot, inv)
	if err := d.queue.Enqueue(ctx, job); err != nil {
		d.observeQueue("rejected")
		log.Error().Err(err).Str("notification_id", job.ID).Str("robot", robot).Msg("failed to enqueue notification")
		return nil, err
	}

	d.observeQueue("enqueued")
	log.Debug().Str("notification_id", job.ID).Str("robot", robot).Msg("notification queued")
	return job, nil
}

func (d *Dispatcher) notify(ctx context.Context, id, robot string, inv dingtalk.Invocation) (*dingtalk.Ack, error) {
	start := time.Now()
	robot = d.resolver.Name(robot)

	logCtx := log.With().Str("robot", robot)
	if id != "" {
		logCtx = logCtx.Str("notification_id", id)
	}
	logger := logCtx.Logger()

	n, err := inv.Notification()
	if err != nil {
		logger.Error().Err(err).Msg("unsupported message type")
		label := unresolvedLabel
		if _, rerr := d.resolver.Resolve(robot); rerr == nil {
			label = robot
		}
		d.observe(label, "", dingtalk.ErrorKind(err), start)
		return nil, err
	}

	endpoint, err := d.resolver.Resolve(robot)
	if err != nil {
		logger.Error().Err(err).Msg("failed to resolve robot")
		d.observe(unresolvedLabel, string(n.Type), outcomeUnresolved, start)
		return nil, err
	}

	client := dingtalk.NewClient(endpoint,
		dingtalk.WithHTTPClient(d.httpClient),
		dingtalk.WithLogger(logger),
	)

	ack, err := client.Notify(ctx, n)
	kind := dingtalk.ErrorKind(err)
	d.observe(robot, string(n.Type), kind, start)

	if err != nil {
		logSendError(logger, err, kind)
		return nil, err
	}
	return ack, nil
}

func logSendError(logger zerolog.Logger, err error, kind string) {
	event := logger.Error().Err(err).Str("kind", kind)

	var remote *dingtalk.RemoteError
	var malformed *dingtalk.MalformedResponseError
	var httpErr *dingtalk.HTTPError

	switch {
	case errors.As(err, &remote):
		event.Int("errcode", remote.Code).Str("errmsg", remote.Message).Msg("robot rejected notification")
	case errors.As(err, &malformed):
		event.Str("body", malformed.Body).Msg("malformed robot response")
	case errors.As(err, &httpErr):
		event.Int("status", httpErr.StatusCode).Msg("robot returned HTTP error")
	case kind == dingtalk.KindNetwork:
		event.Msg("network request failed")
	case kind == dingtalk.KindBuild:
		event.Msg("failed to build message")
	default:
		event.Msg("notification failed")
	}
}

func (d *Dispatcher) observe(robot, msgType, outcome string, start time.Time) {
	if d.metrics == nil {
		return
	}
	d.metrics.ObserveNotification(robot, msgType, outcome, time.Since(start))
}

func (d *Dispatcher) observeQueue(result string) {
	if d.metrics == nil {
		return
	}
	d.metrics.ObserveQueue(result)
}

// Resolver exposes the robot resolver for config reloads.
func (d *Dispatcher) Resolver() *Resolver {
	return d.resolver
}

package vm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jbweber/anvil/internal/events"
	"github.com/jbweber/anvil/internal/metrics"
	"github.com/jbweber/anvil/internal/script"
	"github.com/jbweber/anvil/internal/store"
)

var tracer = otel.Tracer("github.com/jbweber/anvil/internal/vm")

// Options configures a Manager. The zero value is usable.
type Options struct {
	Events  events.Sink
	Metrics *metrics.Metrics
	Logger  logrus.FieldLogger

	// RecordUserOnProvisionFailure keeps the user row written by Create even
	// when manage_users.sh fails.
	RecordUserOnProvisionFailure bool
}

// Manager runs the instance workflows against a store and a script runner.
// It is safe for concurrent use.
type Manager struct {
	store   instanceStore
	runner  scriptRunner
	events  eventPublisher
	metrics *metrics.Metrics
	log     logrus.FieldLogger

	recordUserOnFailure bool
}

// NewManager creates a Manager backed by st and runner.
func NewManager(st *store.Store, runner *script.Runner, opts Options) *Manager {
	return newManagerWithDeps(storeRepo{st}, runner, opts)
}

// newManagerWithDeps creates a Manager with injected dependencies.
// This allows for testing by accepting interfaces instead of concrete types.
func newManagerWithDeps(st instanceStore, runner scriptRunner, opts Options) *Manager {
	m := &Manager{
		store:               st,
		runner:              runner,
		metrics:             opts.Metrics,
		log:                 opts.Logger,
		recordUserOnFailure: opts.RecordUserOnProvisionFailure,
	}
	if opts.Events != nil {
		m.events = opts.Events
	} else {
		m.events = events.Nop{}
	}
	if m.log == nil {
		m.log = logrus.StandardLogger()
	}
	return m
}

// track wraps a workflow in a span and records its outcome.
func (m *Manager) track(ctx context.Context, workflow string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "vm."+workflow)
	defer span.End()

	err := fn(ctx)
	result := outcome(err)

	span.SetAttributes(attribute.String("workflow.outcome", result))
	m.metrics.ObserveWorkflow(workflow, result)

	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, result)

	entry := m.log.WithFields(logrus.Fields{
		"workflow": workflow,
		"outcome":  result,
	})
	if result == "error" {
		entry.WithError(err).Error("workflow failed")
	} else {
		entry.WithError(err).Info("workflow rejected")
	}
	return err
}

// lookup fetches an instance. A missing id yields an error matching ErrNotFound.
func (m *Manager) lookup(ctx context.Context, id uint) (*store.Instance, error) {
	inst, err := m.store.GetInstance(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to look up instance %d: %w", id, err)
	}
	return inst, nil
}

// publish sends e; failures are logged and never fail the workflow.
func (m *Manager) publish(ctx context.Context, e events.Event) {
	if err := m.events.Publish(ctx, e); err != nil {
		m.log.WithFields(logrus.Fields{
			"event":       e.Type,
			"instance_id": e.InstanceID,
			"error":       err,
		}).Warn("failed to publish event")
	}
}

// drift logs a successful external change that could not be recorded.
func (m *Manager) drift(workflow, name, externalUUID string, err error) {
	m.log.WithFields(logrus.Fields{
		"workflow": workflow,
		"name":     name,
		"vm_uuid":  externalUUID,
		"error":    err,
	}).Error("hypervisor changed but instance was not recorded")
}

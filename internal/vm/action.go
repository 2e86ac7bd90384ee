package vm

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/anvil/internal/events"
	"github.com/jbweber/anvil/internal/script"
	"github.com/jbweber/anvil/internal/status"
	"github.com/jbweber/anvil/internal/store"
)

// Action is a lifecycle action on an existing instance.
type Action int

const (
	ActionStart Action = iota
	ActionStop
	ActionDelete
)

// ParseAction maps the route segment to an Action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "start":
		return ActionStart, nil
	case "stop":
		return ActionStop, nil
	case "delete":
		return ActionDelete, nil
	default:
		return 0, &ValidationError{Field: "action", Message: "Invalid action"}
	}
}

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("unknown(%d)", int(a))
	}
}

// Perform runs action a on instance id and returns the instance as it was
// last recorded. For ActionDelete that is the row that was removed.
func (m *Manager) Perform(ctx context.Context, a Action, id uint) (*store.Instance, error) {
	switch a {
	case ActionStart:
		return m.Start(ctx, id)
	case ActionStop:
		return m.Stop(ctx, id)
	case ActionDelete:
		return m.Delete(ctx, id)
	default:
		return nil, &ValidationError{Field: "action", Message: "Invalid action"}
	}
}

// Start runs start_vm.sh and marks the instance running on success.
func (m *Manager) Start(ctx context.Context, id uint) (*store.Instance, error) {
	return m.transition(ctx, "start", id, script.Start, status.StartSucceeded, events.InstanceStarted)
}

// Stop runs stop_vm.sh and marks the instance stopped on success. The script
// runs even when the instance is already recorded as stopped.
func (m *Manager) Stop(ctx context.Context, id uint) (*store.Instance, error) {
	return m.transition(ctx, "stop", id, script.Stop, status.StopSucceeded, events.InstanceStopped)
}

func (m *Manager) transition(ctx context.Context, workflow string, id uint, cmd script.Command, ev status.Event, eventType string) (*store.Instance, error) {
	var inst *store.Instance
	err := m.track(ctx, workflow, func(ctx context.Context) error {
		var err error
		inst, err = m.lookup(ctx, id)
		if err != nil {
			return err
		}

		res := m.runner.Run(ctx, cmd, inst.Name)
		if !res.Success {
			return newExternalError(res)
		}

		next := status.Next(inst.Status, ev)
		if err := m.store.SetStatus(ctx, inst.ID, next); err != nil {
			return fmt.Errorf("failed to record status of %s: %w", inst.Name, err)
		}

		m.log.WithFields(logrus.Fields{
			"name":   inst.Name,
			"event":  ev.String(),
			"status": next,
		}).Info("instance status updated")
		inst.Status = next

		m.publish(ctx, events.New(eventType, inst.ID, inst.Name))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// Delete runs destroy_vm.sh and removes the instance with its services and
// users on success.
func (m *Manager) Delete(ctx context.Context, id uint) (*store.Instance, error) {
	var inst *store.Instance
	err := m.track(ctx, "delete", func(ctx context.Context) error {
		var err error
		inst, err = m.lookup(ctx, id)
		if err != nil {
			return err
		}

		res := m.runner.Run(ctx, script.Destroy, inst.Name)
		if !res.Success {
			return newExternalError(res)
		}

		if err := m.store.DeleteInstance(ctx, inst.ID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", inst.Name, err)
		}

		m.log.WithField("name", inst.Name).Info("instance deleted")
		m.publish(ctx, events.New(events.InstanceDeleted, inst.ID, inst.Name))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

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

// Clone copies instance sourceID under a new name. The clone keeps the
// source's sizing, services and users, and always starts out stopped.
func (m *Manager) Clone(ctx context.Context, sourceID uint, req CloneRequest) (*store.Instance, error) {
	var inst *store.Instance
	err := m.track(ctx, "clone", func(ctx context.Context) error {
		var err error
		inst, err = m.clone(ctx, sourceID, req)
		return err
	})
	return inst, err
}

func (m *Manager) clone(ctx context.Context, sourceID uint, req CloneRequest) (*store.Instance, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	exists, err := m.store.NameExists(ctx, req.NewName)
	if err != nil {
		return nil, fmt.Errorf("failed to check name %s: %w", req.NewName, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, req.NewName)
	}

	src, err := m.lookup(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	log := m.log.WithFields(logrus.Fields{
		"source": src.Name,
		"name":   req.NewName,
	})
	log.Info("cloning instance")

	res := m.runner.Run(ctx, script.Clone, src.Name, req.NewName)
	if !res.Success {
		return nil, newExternalError(res)
	}
	externalUUID := script.LastLine(res.Stdout)

	inst := &store.Instance{
		Name:         req.NewName,
		OSType:       src.OSType,
		CPUCores:     src.CPUCores,
		RAMSize:      src.RAMSize,
		StorageSize:  src.StorageSize,
		Status:       status.Stopped,
		ExternalUUID: externalUUID,
	}

	err = m.store.Atomic(ctx, func(tx instanceStore) error {
		if err := tx.CreateInstance(ctx, inst); err != nil {
			return err
		}
		return tx.CopyDependents(ctx, src.ID, inst.ID)
	})
	if err != nil {
		m.drift("clone", req.NewName, externalUUID, err)
		return nil, fmt.Errorf("failed to record clone %s: %w", req.NewName, err)
	}

	log.WithFields(logrus.Fields{
		"id":      inst.ID,
		"vm_uuid": externalUUID,
	}).Info("instance cloned")

	m.publish(ctx, events.New(events.InstanceCloned, inst.ID, inst.Name).
		With("source", src.Name).
		With("vm_uuid", externalUUID))

	return inst, nil
}

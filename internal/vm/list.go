package vm

import (
	"context"
	"fmt"

	"github.com/jbweber/anvil/internal/store"
)

// Details is an instance together with its services and users.
type Details struct {
	Instance *store.Instance
	Services []store.Service
	Users    []store.VMUser
}

// List returns every recorded instance, newest first. No script is run.
func (m *Manager) List(ctx context.Context) ([]store.Instance, error) {
	instances, err := m.store.ListInstances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	return instances, nil
}

// Get returns one recorded instance.
func (m *Manager) Get(ctx context.Context, id uint) (*store.Instance, error) {
	return m.lookup(ctx, id)
}

// Details returns an instance with its services and users, newest first.
func (m *Manager) Details(ctx context.Context, id uint) (*Details, error) {
	inst, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	services, err := m.store.ListServices(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list services of %s: %w", inst.Name, err)
	}

	users, err := m.store.ListUsers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list users of %s: %w", inst.Name, err)
	}

	return &Details{Instance: inst, Services: services, Users: users}, nil
}

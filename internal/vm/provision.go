package vm

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/anvil/internal/events"
	"github.com/jbweber/anvil/internal/script"
	"github.com/jbweber/anvil/internal/store"
)

// InstallService runs install_service.sh on instance id and records the
// service on success.
func (m *Manager) InstallService(ctx context.Context, id uint, req InstallServiceRequest) (*store.Service, error) {
	var svc *store.Service
	err := m.track(ctx, "install_service", func(ctx context.Context) error {
		req.Normalize()
		if err := req.Validate(); err != nil {
			return err
		}

		inst, err := m.lookup(ctx, id)
		if err != nil {
			return err
		}

		res := m.runner.Run(ctx, script.InstallService, inst.Name, req.ServiceName)
		if !res.Success {
			return newExternalError(res)
		}

		svc, err = m.store.AddService(ctx, inst.ID, req.ServiceName)
		if err != nil {
			return fmt.Errorf("failed to record service %s on %s: %w", req.ServiceName, inst.Name, err)
		}

		m.log.WithFields(logrus.Fields{
			"name":    inst.Name,
			"service": req.ServiceName,
		}).Info("service installed")

		m.publish(ctx, events.New(events.ServiceInstalled, inst.ID, inst.Name).With("service", req.ServiceName))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// CreateUser runs manage_users.sh on instance id and records the user on
// success. The password is passed to the script and never stored.
func (m *Manager) CreateUser(ctx context.Context, id uint, req CreateUserRequest) (*store.VMUser, error) {
	var user *store.VMUser
	err := m.track(ctx, "create_user", func(ctx context.Context) error {
		req.Normalize()
		if err := req.Validate(); err != nil {
			return err
		}

		inst, err := m.lookup(ctx, id)
		if err != nil {
			return err
		}

		res := m.runner.Run(ctx, script.ManageUsers, inst.Name, req.Username, req.Password, script.SudoFlag(req.Sudo))
		if !res.Success {
			return newExternalError(res)
		}

		user, err = m.store.AddUser(ctx, inst.ID, req.Username, req.Sudo)
		if err != nil {
			return fmt.Errorf("failed to record user %s on %s: %w", req.Username, inst.Name, err)
		}

		m.log.WithFields(logrus.Fields{
			"name":     inst.Name,
			"username": req.Username,
			"sudo":     req.Sudo,
		}).Info("user created")

		m.publish(ctx, events.New(events.UserCreated, inst.ID, inst.Name).With("username", req.Username))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

package vm

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/anvil/internal/events"
	"github.com/jbweber/anvil/internal/script"
	"github.com/jbweber/anvil/internal/status"
	"github.com/jbweber/anvil/internal/store"
)

// CreateResult describes a completed create workflow.
type CreateResult struct {
	Instance *store.Instance

	// UserRequested is true when a username and password were supplied.
	UserRequested bool

	// UserErr is the manage_users.sh failure, if any. The instance was still
	// created.
	UserErr error
}

// Create provisions a new instance.
//
// This orchestrates the entire creation process:
//  1. Validate the request
//  2. Reject names already in use, before any script runs
//  3. Run create_vm.sh; its last stdout line is the external UUID
//  4. If a username and password were given, run manage_users.sh
//  5. Insert the instance, its services and its user in one transaction
//
// Services are recorded without running install_service.sh.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	var result *CreateResult
	err := m.track(ctx, "create", func(ctx context.Context) error {
		var err error
		result, err = m.create(ctx, req)
		return err
	})
	return result, err
}

func (m *Manager) create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	req.Normalize()

	// Step 1: Validate
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := m.log.WithField("name", req.Name)

	// Step 2: Uniqueness
	exists, err := m.store.NameExists(ctx, req.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check name %s: %w", req.Name, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, req.Name)
	}

	// Step 3: External create
	log.WithFields(logrus.Fields{
		"os_type": req.OSType,
		"cpu":     req.CPU,
		"ram":     req.RAM,
		"storage": req.Storage,
	}).Info("creating instance")

	res := m.runner.Run(ctx, script.Create, req.Name, req.OSType,
		strconv.Itoa(req.CPU), strconv.Itoa(req.RAM), strconv.Itoa(req.Storage))
	if !res.Success {
		return nil, newExternalError(res)
	}
	externalUUID := script.LastLine(res.Stdout)

	// Step 4: Optional user provisioning
	result := &CreateResult{UserRequested: req.ProvisionUser()}
	if result.UserRequested {
		ures := m.runner.Run(ctx, script.ManageUsers, req.Name, req.Username, req.Password, script.SudoFlag(req.Sudo))
		if !ures.Success {
			result.UserErr = newExternalError(ures)
			log.WithFields(logrus.Fields{
				"username":   req.Username,
				"diagnostic": ures.Diagnostic(),
			}).Warn("user provisioning failed")
		}
	}
	recordUser := result.UserRequested && (result.UserErr == nil || m.recordUserOnFailure)

	// Step 5: Persist
	inst := &store.Instance{
		Name:         req.Name,
		OSType:       req.OSType,
		CPUCores:     req.CPU,
		RAMSize:      req.RAM,
		StorageSize:  req.Storage,
		Status:       status.Stopped,
		ExternalUUID: externalUUID,
	}

	err = m.store.Atomic(ctx, func(tx instanceStore) error {
		if err := tx.CreateInstance(ctx, inst); err != nil {
			return err
		}
		for _, svc := range req.Services {
			row, err := tx.AddService(ctx, inst.ID, svc)
			if err != nil {
				return err
			}
			inst.Services = append(inst.Services, *row)
		}
		if recordUser {
			row, err := tx.AddUser(ctx, inst.ID, req.Username, req.Sudo)
			if err != nil {
				return err
			}
			inst.Users = append(inst.Users, *row)
		}
		return nil
	})
	if err != nil {
		m.drift("create", req.Name, externalUUID, err)
		return nil, fmt.Errorf("failed to record instance %s: %w", req.Name, err)
	}

	log.WithFields(logrus.Fields{
		"id":       inst.ID,
		"vm_uuid":  externalUUID,
		"services": len(inst.Services),
		"users":    len(inst.Users),
	}).Info("instance created")

	m.publish(ctx, events.New(events.InstanceCreated, inst.ID, inst.Name).With("vm_uuid", externalUUID))
	if result.UserRequested && result.UserErr == nil {
		m.publish(ctx, events.New(events.UserCreated, inst.ID, inst.Name).With("username", req.Username))
	}

	result.Instance = inst
	return result, nil
}

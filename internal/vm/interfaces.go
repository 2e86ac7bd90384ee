package vm

import (
	"context"

	"github.com/jbweber/anvil/internal/events"
	"github.com/jbweber/anvil/internal/script"
	"github.com/jbweber/anvil/internal/status"
	"github.com/jbweber/anvil/internal/store"
)

// instanceStore defines the repository operations the workflows need.
//
// In production, this is satisfied by storeRepo wrapping *store.Store.
// In tests, this is satisfied by an in-memory mock.
type instanceStore interface {
	// NameExists reports whether an instance already uses name
	NameExists(ctx context.Context, name string) (bool, error)

	// CreateInstance inserts an instance and assigns its ID
	CreateInstance(ctx context.Context, inst *store.Instance) error

	// ListInstances returns every instance, newest first
	ListInstances(ctx context.Context) ([]store.Instance, error)

	// GetInstance returns one instance or store.ErrNotFound
	GetInstance(ctx context.Context, id uint) (*store.Instance, error)

	// SetStatus updates the recorded status of an instance
	SetStatus(ctx context.Context, id uint, st status.Status) error

	// DeleteInstance removes an instance and its dependents
	DeleteInstance(ctx context.Context, id uint) error

	// AddService records an installed service
	AddService(ctx context.Context, instanceID uint, serviceName string) (*store.Service, error)

	// AddUser records a provisioned OS user
	AddUser(ctx context.Context, instanceID uint, username string, hasSudo bool) (*store.VMUser, error)

	// ListServices returns the services of an instance, newest first
	ListServices(ctx context.Context, instanceID uint) ([]store.Service, error)

	// ListUsers returns the users of an instance, newest first
	ListUsers(ctx context.Context, instanceID uint) ([]store.VMUser, error)

	// CopyDependents copies services and users from one instance to another
	CopyDependents(ctx context.Context, srcID, dstID uint) error

	// Atomic runs fn against a store bound to a single transaction
	Atomic(ctx context.Context, fn func(tx instanceStore) error) error
}

// scriptRunner defines how workflows invoke external scripts.
//
// In production, this is satisfied by *script.Runner.
type scriptRunner interface {
	Run(ctx context.Context, cmd script.Command, args ...string) script.Result
}

// eventPublisher receives lifecycle events after successful workflows.
//
// In production, this is satisfied by *events.Publisher or events.Nop.
type eventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// storeRepo adapts *store.Store to instanceStore.
type storeRepo struct {
	*store.Store
}

func (r storeRepo) Atomic(ctx context.Context, fn func(tx instanceStore) error) error {
	return r.Store.Transaction(ctx, func(tx *store.Store) error {
		return fn(storeRepo{tx})
	})
}

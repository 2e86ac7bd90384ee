package vm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/jbweber/anvil/internal/events"
	"github.com/jbweber/anvil/internal/script"
	"github.com/jbweber/anvil/internal/status"
	"github.com/jbweber/anvil/internal/store"
)

// mockStore is an in-memory implementation of the instanceStore interface.
type mockStore struct {
	mu sync.Mutex

	nextID    uint
	nextDepID uint
	instances map[uint]store.Instance
	services  map[uint][]store.Service
	users     map[uint][]store.VMUser

	// Configurable behavior (nil means use the in-memory implementation)
	nameExistsFunc     func(name string) (bool, error)
	createInstanceFunc func(inst *store.Instance) error
	addServiceFunc     func(instanceID uint, name string) error
	addUserFunc        func(instanceID uint, username string) error
	setStatusFunc      func(id uint, st status.Status) error
	getInstanceFunc    func(id uint) error

	// Call tracking
	nameExistsCalls     []string
	createInstanceCalls []string
	setStatusCalls      []status.Status
	deleteInstanceCalls []uint
	atomicCalls         int
}

// newMockStore creates an empty mock store.
func newMockStore() *mockStore {
	return &mockStore{
		instances: make(map[uint]store.Instance),
		services:  make(map[uint][]store.Service),
		users:     make(map[uint][]store.VMUser),
	}
}

// seed inserts an instance directly, bypassing call tracking.
func (m *mockStore) seed(inst store.Instance) uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	inst.ID = m.nextID
	if inst.Status == "" {
		inst.Status = status.Stopped
	}
	inst.CreatedAt = time.Now()
	m.instances[inst.ID] = inst
	return inst.ID
}

func (m *mockStore) seedService(instanceID uint, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextDepID++
	m.services[instanceID] = append(m.services[instanceID], store.Service{
		ID: m.nextDepID, InstanceID: instanceID, ServiceName: name, Status: store.ServiceInstalled,
	})
}

func (m *mockStore) seedUser(instanceID uint, username string, sudo bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextDepID++
	m.users[instanceID] = append(m.users[instanceID], store.VMUser{
		ID: m.nextDepID, InstanceID: instanceID, Username: username, HasSudo: sudo,
	})
}

func (m *mockStore) instanceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

func (m *mockStore) byName(name string) (store.Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inst := range m.instances {
		if inst.Name == name {
			return inst, true
		}
	}
	return store.Instance{}, false
}

func (m *mockStore) NameExists(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nameExistsCalls = append(m.nameExistsCalls, name)
	if m.nameExistsFunc != nil {
		return m.nameExistsFunc(name)
	}
	for _, inst := range m.instances {
		if inst.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) CreateInstance(ctx context.Context, inst *store.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createInstanceCalls = append(m.createInstanceCalls, inst.Name)
	if m.createInstanceFunc != nil {
		if err := m.createInstanceFunc(inst); err != nil {
			return err
		}
	}
	for _, existing := range m.instances {
		if existing.Name == inst.Name {
			return fmt.Errorf("%w: %s", store.ErrDuplicateName, inst.Name)
		}
	}
	m.nextID++
	inst.ID = m.nextID
	inst.CreatedAt = time.Now()
	row := *inst
	row.Services, row.Users = nil, nil
	m.instances[inst.ID] = row
	return nil
}

func (m *mockStore) ListInstances(ctx context.Context) ([]store.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Instance
	for id := m.nextID; id > 0; id-- {
		if inst, ok := m.instances[id]; ok {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (m *mockStore) GetInstance(ctx context.Context, id uint) (*store.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getInstanceFunc != nil {
		if err := m.getInstanceFunc(id); err != nil {
			return nil, err
		}
	}
	inst, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", store.ErrNotFound, id)
	}
	return &inst, nil
}

func (m *mockStore) SetStatus(ctx context.Context, id uint, st status.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStatusCalls = append(m.setStatusCalls, st)
	if m.setStatusFunc != nil {
		if err := m.setStatusFunc(id, st); err != nil {
			return err
		}
	}
	inst, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("%w: %d", store.ErrNotFound, id)
	}
	inst.Status = st
	m.instances[id] = inst
	return nil
}

func (m *mockStore) DeleteInstance(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteInstanceCalls = append(m.deleteInstanceCalls, id)
	if _, ok := m.instances[id]; !ok {
		return fmt.Errorf("%w: %d", store.ErrNotFound, id)
	}
	delete(m.instances, id)
	delete(m.services, id)
	delete(m.users, id)
	return nil
}

func (m *mockStore) AddService(ctx context.Context, instanceID uint, serviceName string) (*store.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addServiceFunc != nil {
		if err := m.addServiceFunc(instanceID, serviceName); err != nil {
			return nil, err
		}
	}
	if _, ok := m.instances[instanceID]; !ok {
		return nil, fmt.Errorf("FOREIGN KEY constraint failed")
	}
	m.nextDepID++
	svc := store.Service{ID: m.nextDepID, InstanceID: instanceID, ServiceName: serviceName, Status: store.ServiceInstalled}
	m.services[instanceID] = append(m.services[instanceID], svc)
	return &svc, nil
}

func (m *mockStore) AddUser(ctx context.Context, instanceID uint, username string, hasSudo bool) (*store.VMUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addUserFunc != nil {
		if err := m.addUserFunc(instanceID, username); err != nil {
			return nil, err
		}
	}
	if _, ok := m.instances[instanceID]; !ok {
		return nil, fmt.Errorf("FOREIGN KEY constraint failed")
	}
	m.nextDepID++
	user := store.VMUser{ID: m.nextDepID, InstanceID: instanceID, Username: username, HasSudo: hasSudo}
	m.users[instanceID] = append(m.users[instanceID], user)
	return &user, nil
}

func (m *mockStore) ListServices(ctx context.Context, instanceID uint) ([]store.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.services[instanceID]
	out := make([]store.Service, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

func (m *mockStore) ListUsers(ctx context.Context, instanceID uint) ([]store.VMUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.users[instanceID]
	out := make([]store.VMUser, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

func (m *mockStore) CopyDependents(ctx context.Context, srcID, dstID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, svc := range m.services[srcID] {
		m.nextDepID++
		svc.ID, svc.InstanceID = m.nextDepID, dstID
		m.services[dstID] = append(m.services[dstID], svc)
	}
	for _, u := range m.users[srcID] {
		m.nextDepID++
		u.ID, u.InstanceID = m.nextDepID, dstID
		m.users[dstID] = append(m.users[dstID], u)
	}
	return nil
}

// Atomic snapshots the maps and restores them if fn fails.
func (m *mockStore) Atomic(ctx context.Context, fn func(tx instanceStore) error) error {
	m.mu.Lock()
	m.atomicCalls++
	snapInstances := make(map[uint]store.Instance, len(m.instances))
	for k, v := range m.instances {
		snapInstances[k] = v
	}
	snapServices := make(map[uint][]store.Service, len(m.services))
	for k, v := range m.services {
		snapServices[k] = append([]store.Service(nil), v...)
	}
	snapUsers := make(map[uint][]store.VMUser, len(m.users))
	for k, v := range m.users {
		snapUsers[k] = append([]store.VMUser(nil), v...)
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.instances, m.services, m.users = snapInstances, snapServices, snapUsers
		m.mu.Unlock()
		return err
	}
	return nil
}

// runCall records one script invocation.
type runCall struct {
	cmd  script.Command
	args []string
}

// mockRunner is a mock implementation of the scriptRunner interface.
type mockRunner struct {
	mu sync.Mutex

	// Configurable behavior, keyed by command. Commands without an entry succeed
	// with empty output.
	results map[script.Command]script.Result

	// Call tracking
	calls []runCall
}

func newMockRunner() *mockRunner {
	return &mockRunner{results: make(map[script.Command]script.Result)}
}

func (m *mockRunner) on(cmd script.Command, res script.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[cmd] = res
}

func (m *mockRunner) Run(ctx context.Context, cmd script.Command, args ...string) script.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, runCall{cmd: cmd, args: append([]string(nil), args...)})
	res, ok := m.results[cmd]
	if !ok {
		res = okResult("")
	}
	res.Command = cmd
	return res
}

func (m *mockRunner) callsFor(cmd script.Command) []runCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []runCall
	for _, c := range m.calls {
		if c.cmd == cmd {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func okResult(stdout string) script.Result {
	code := 0
	return script.Result{Success: true, Kind: script.None, Stdout: stdout, ExitCode: &code}
}

func exitResult(code int, stderr string) script.Result {
	return script.Result{Kind: script.ExitStatus, Stderr: stderr, ExitCode: &code}
}

func timeoutResult() script.Result {
	return script.Result{
		Kind:    script.Timeout,
		Message: "Script execution timed out",
		Stderr:  "Timeout after 2m0s",
	}
}

// mockPublisher records published events.
type mockPublisher struct {
	mu     sync.Mutex
	err    error
	events []events.Event
}

func (m *mockPublisher) Publish(ctx context.Context, e events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *mockPublisher) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

// testManager bundles a Manager with its mocks.
type testManager struct {
	*Manager
	store  *mockStore
	runner *mockRunner
	pub    *mockPublisher
	logs   *test.Hook
}

func newTestManager(opts Options) *testManager {
	logger, hook := test.NewNullLogger()
	st := newMockStore()
	runner := newMockRunner()
	pub := &mockPublisher{}
	opts.Logger = logger
	opts.Events = pub
	return &testManager{
		Manager: newManagerWithDeps(st, runner, opts),
		store:   st,
		runner:  runner,
		pub:     pub,
		logs:    hook,
	}
}

func joinArgs(c runCall) string {
	return strings.Join(c.args, " ")
}

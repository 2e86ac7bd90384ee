package vm

import (
	"context"
	"errors"
	"testing"

	"github.com/jbweber/anvil/internal/events"
	"github.com/jbweber/anvil/internal/script"
	"github.com/jbweber/anvil/internal/status"
)

// testCreateRequest returns a minimal valid create request.
func testCreateRequest() CreateRequest {
	return CreateRequest{
		Name:    "web1",
		OSType:  "Ubuntu",
		CPU:     2,
		RAM:     2048,
		Storage: 20000,
	}
}

// TestCreate_WebScenario covers the basic create: one service, no user.
func TestCreate_WebScenario(t *testing.T) {
	ctx := context.Background()
	tm := newTestManager(Options{RecordUserOnProvisionFailure: true})
	tm.runner.on(script.Create, okResult("OK\nuuid-123"))

	req := testCreateRequest()
	req.Services = []string{"nginx"}

	result, err := tm.Create(ctx, req)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	inst, ok := tm.store.byName("web1")
	if !ok {
		t.Fatal("expected instance web1 to be recorded")
	}
	if inst.Status != status.Stopped {
		t.Errorf("expected status stopped, got %s", inst.Status)
	}
	if inst.ExternalUUID != "uuid-123" {
		t.Errorf("expected external uuid uuid-123, got %q", inst.ExternalUUID)
	}
	if inst.OSType != "Ubuntu" || inst.CPUCores != 2 || inst.RAMSize != 2048 || inst.StorageSize != 20000 {
		t.Errorf("unexpected sizing: %+v", inst)
	}

	services, _ := tm.store.ListServices(ctx, inst.ID)
	if len(services) != 1 || services[0].ServiceName != "nginx" {
		t.Errorf("expected one nginx service, got %+v", services)
	}
	users, _ := tm.store.ListUsers(ctx, inst.ID)
	if len(users) != 0 {
		t.Errorf("expected no users, got %d", len(users))
	}

	calls := tm.runner.callsFor(script.Create)
	if len(calls) != 1 {
		t.Fatalf("expected 1 create call, got %d", len(calls))
	}
	if got := joinArgs(calls[0]); got != "web1 Ubuntu 2 2048 20000" {
		t.Errorf("unexpected create args: %q", got)
	}
	if n := len(tm.runner.callsFor(script.ManageUsers)); n != 0 {
		t.Errorf("expected no manage_users call, got %d", n)
	}

	if result.Instance.ID != inst.ID || result.UserRequested || result.UserErr != nil {
		t.Errorf("unexpected result: %+v", result)
	}
	if tm.store.atomicCalls != 1 {
		t.Errorf("expected one transaction, got %d", tm.store.atomicCalls)
	}
	if got := tm.pub.types(); len(got) != 1 || got[0] != events.InstanceCreated {
		t.Errorf("expected one instance.created event, got %v", got)
	}
}

func TestCreate_DuplicateNameRunsNoScript(t *testing.T) {
	ctx := context.Background()
	tm := newTestManager(Options{})
	tm.store.seed(testInstance("web1"))

	_, err := tm.Create(ctx, testCreateRequest())

	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got: %v", err)
	}
	if n := tm.runner.callCount(); n != 0 {
		t.Errorf("expected no script calls, got %d", n)
	}
	if n := tm.store.instanceCount(); n != 1 {
		t.Errorf("expected 1 instance, got %d", n)
	}
}

func TestCreate_ValidationRunsNoScript(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *CreateRequest)
		field  string
	}{
		{"empty name", func(r *CreateRequest) { r.Name = "" }, "name"},
		{"blank name", func(r *CreateRequest) { r.Name = "   " }, "name"},
		{"empty os", func(r *CreateRequest) { r.OSType = "" }, "os_type"},
		{"zero cpu", func(r *CreateRequest) { r.CPU = 0 }, "cpu"},
		{"zero ram", func(r *CreateRequest) { r.RAM = 0 }, "ram"},
		{"negative storage", func(r *CreateRequest) { r.Storage = -1 }, "storage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := newTestManager(Options{})
			req := testCreateRequest()
			tt.mutate(&req)

			_, err := tm.Create(context.Background(), req)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got: %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, verr.Field)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("expected error to match ErrValidation")
			}
			if n := tm.runner.callCount(); n != 0 {
				t.Errorf("expected no script calls, got %d", n)
			}
			if len(tm.store.nameExistsCalls) != 0 {
				t.Error("expected validation before the uniqueness check")
			}
		})
	}
}

func TestCreate_ExternalFailureRecordsNothing(t *testing.T) {
	tests := []struct {
		name     string
		result   script.Result
		sentinel error
		diag     string
	}{
		{"exit status", exitResult(1, "VBoxManage: error: name in use"), script.ErrExitStatus, "VBoxManage: error: name in use"},
		{"timeout", timeoutResult(), script.ErrTimeout, "Timeout after 2m0s"},
		{"script missing", script.Result{Kind: script.NotFound, Stderr: "Script not found: /x/create_vm.sh"}, script.ErrNotFound, "Script not found: /x/create_vm.sh"},
		{"no interpreter", script.Result{Kind: script.InterpreterUnavailable, Stderr: "Interpreter executable not found"}, script.ErrInterpreterUnavailable, "Interpreter executable not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := newTestManager(Options{})
			tm.runner.on(script.Create, tt.result)

			req := testCreateRequest()
			req.Services = []string{"nginx"}
			req.Username, req.Password = "alice", "pw"

			_, err := tm.Create(context.Background(), req)

			var extErr *ExternalError
			if !errors.As(err, &extErr) {
				t.Fatalf("expected ExternalError, got: %v", err)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("expected error to wrap %v", tt.sentinel)
			}
			if extErr.Diagnostic() != tt.diag {
				t.Errorf("expected diagnostic %q, got %q", tt.diag, extErr.Diagnostic())
			}
			if n := tm.store.instanceCount(); n != 0 {
				t.Errorf("expected no instances, got %d", n)
			}
			if n := len(tm.runner.callsFor(script.ManageUsers)); n != 0 {
				t.Errorf("expected no manage_users call after failed create, got %d", n)
			}
			if len(tm.pub.types()) != 0 {
				t.Errorf("expected no events, got %v", tm.pub.types())
			}
		})
	}
}

func TestCreate_WithUser(t *testing.T) {
	tests := []struct {
		name          string
		recordOnFail  bool
		userOK        bool
		wantUsers     int
		wantUserError bool
	}{
		{"provisioning succeeds", false, true, 1, false},
		{"provisioning fails, record anyway", true, false, 1, true},
		{"provisioning fails, strict", false, false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tm := newTestManager(Options{RecordUserOnProvisionFailure: tt.recordOnFail})
			tm.runner.on(script.Create, okResult("uuid-9"))
			if !tt.userOK {
				tm.runner.on(script.ManageUsers, exitResult(2, "useradd failed"))
			}

			req := testCreateRequest()
			req.Username, req.Password, req.Sudo = "alice", "s3cret", true

			result, err := tm.Create(ctx, req)
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}

			calls := tm.runner.callsFor(script.ManageUsers)
			if len(calls) != 1 {
				t.Fatalf("expected 1 manage_users call, got %d", len(calls))
			}
			if got := joinArgs(calls[0]); got != "web1 alice s3cret yes" {
				t.Errorf("unexpected manage_users args: %q", got)
			}

			users, _ := tm.store.ListUsers(ctx, result.Instance.ID)
			if len(users) != tt.wantUsers {
				t.Fatalf("expected %d users, got %d", tt.wantUsers, len(users))
			}
			if tt.wantUsers == 1 && (users[0].Username != "alice" || !users[0].HasSudo) {
				t.Errorf("unexpected user row: %+v", users[0])
			}
			if (result.UserErr != nil) != tt.wantUserError {
				t.Errorf("expected user error %v, got %v", tt.wantUserError, result.UserErr)
			}
			if _, ok := tm.store.byName("web1"); !ok {
				t.Error("expected instance to be recorded regardless of user provisioning")
			}
		})
	}
}

func TestCreate_UserNeedsUsernameAndPassword(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
	}{
		{"no username", "", "pw"},
		{"no password", "alice", ""},
		{"blank password", "alice", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tm := newTestManager(Options{RecordUserOnProvisionFailure: true})

			req := testCreateRequest()
			req.Username, req.Password = tt.username, tt.password

			result, err := tm.Create(ctx, req)
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if n := len(tm.runner.callsFor(script.ManageUsers)); n != 0 {
				t.Errorf("expected provisioning to be skipped, got %d calls", n)
			}
			users, _ := tm.store.ListUsers(ctx, result.Instance.ID)
			if len(users) != 0 {
				t.Errorf("expected no users, got %d", len(users))
			}
		})
	}
}

func TestCreate_LastNonEmptyLineIsUUID(t *testing.T) {
	tm := newTestManager(Options{})
	tm.runner.on(script.Create, okResult("Creating VM...\nDone\n  abc-def  \n\n"))

	result, err := tm.Create(context.Background(), testCreateRequest())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.Instance.ExternalUUID != "abc-def" {
		t.Errorf("expected abc-def, got %q", result.Instance.ExternalUUID)
	}
}

func TestCreate_InsertFailureIsDrift(t *testing.T) {
	ctx := context.Background()
	tm := newTestManager(Options{})
	tm.runner.on(script.Create, okResult("uuid-1"))
	tm.store.addServiceFunc = func(instanceID uint, name string) error {
		return errors.New("disk I/O error")
	}

	req := testCreateRequest()
	req.Services = []string{"nginx"}

	_, err := tm.Create(ctx, req)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if n := tm.store.instanceCount(); n != 0 {
		t.Errorf("expected the transaction to roll back, got %d instances", n)
	}

	found := false
	for _, entry := range tm.logs.AllEntries() {
		if entry.Message == "hypervisor changed but instance was not recorded" {
			found = true
			if entry.Data["vm_uuid"] != "uuid-1" {
				t.Errorf("expected drift log to carry vm_uuid, got %v", entry.Data["vm_uuid"])
			}
		}
	}
	if !found {
		t.Error("expected a drift log entry")
	}
}

func TestCreate_LostRaceReturnsDuplicate(t *testing.T) {
	tm := newTestManager(Options{})
	tm.runner.on(script.Create, okResult("uuid-1"))

	// Another request records the same name while the script runs.
	tm.store.nameExistsFunc = func(name string) (bool, error) { return false, nil }
	tm.store.seed(testInstance("web1"))

	_, err := tm.Create(context.Background(), testCreateRequest())
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got: %v", err)
	}
	if n := len(tm.runner.callsFor(script.Create)); n != 1 {
		t.Errorf("expected the create script to have run once, got %d", n)
	}
	if n := tm.store.instanceCount(); n != 1 {
		t.Errorf("expected only the winning instance, got %d", n)
	}
}

func TestCreate_PublishFailureDoesNotFail(t *testing.T) {
	tm := newTestManager(Options{})
	tm.pub.err = errors.New("nats down")

	if _, err := tm.Create(context.Background(), testCreateRequest()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if _, ok := tm.store.byName("web1"); !ok {
		t.Error("expected instance to be recorded")
	}
}

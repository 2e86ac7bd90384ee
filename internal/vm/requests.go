package vm

import "strings"

// CreateRequest is the input of the create workflow.
type CreateRequest struct {
	Name     string
	OSType   string
	CPU      int // cores
	RAM      int // MB
	Storage  int // MB
	Services []string
	Username string
	Password string
	Sudo     bool
}

// Normalize trims text fields and drops blank service names.
func (r *CreateRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.OSType = strings.TrimSpace(r.OSType)
	r.Username = strings.TrimSpace(r.Username)
	r.Password = strings.TrimSpace(r.Password)

	var services []string
	for _, svc := range r.Services {
		if svc = strings.TrimSpace(svc); svc != "" {
			services = append(services, svc)
		}
	}
	r.Services = services
}

// Validate checks the request. It does not consult the store.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return &ValidationError{Field: "name", Message: "Server name is required"}
	}
	if r.OSType == "" {
		return &ValidationError{Field: "os_type", Message: "Operating system is required"}
	}
	if r.CPU < 1 {
		return &ValidationError{Field: "cpu", Message: "CPU cores must be at least 1"}
	}
	if r.RAM < 1 {
		return &ValidationError{Field: "ram", Message: "RAM size must be at least 1 MB"}
	}
	if r.Storage < 1 {
		return &ValidationError{Field: "storage", Message: "Storage size must be at least 1 MB"}
	}
	return nil
}

// ProvisionUser reports whether a user should be provisioned. Both a
// username and a password are needed; otherwise provisioning is skipped.
func (r *CreateRequest) ProvisionUser() bool {
	return r.Username != "" && r.Password != ""
}

// CloneRequest is the input of the clone workflow.
type CloneRequest struct {
	NewName string
}

func (r *CloneRequest) Normalize() {
	r.NewName = strings.TrimSpace(r.NewName)
}

func (r *CloneRequest) Validate() error {
	if r.NewName == "" {
		return &ValidationError{Field: "new_name", Message: "New server name is required"}
	}
	return nil
}

// InstallServiceRequest is the input of the install-service workflow.
type InstallServiceRequest struct {
	ServiceName string
}

func (r *InstallServiceRequest) Normalize() {
	r.ServiceName = strings.TrimSpace(r.ServiceName)
}

func (r *InstallServiceRequest) Validate() error {
	if r.ServiceName == "" {
		return &ValidationError{Field: "service_name", Message: "Service name is required"}
	}
	return nil
}

// CreateUserRequest is the input of the create-user workflow.
type CreateUserRequest struct {
	Username string
	Password string
	Sudo     bool
}

func (r *CreateUserRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Password = strings.TrimSpace(r.Password)
}

func (r *CreateUserRequest) Validate() error {
	if r.Username == "" || r.Password == "" {
		return &ValidationError{Field: "username", Message: "Username and password are required"}
	}
	return nil
}

package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jbweber/anvil/internal/vm"
)

var (
	defaultOSTypes  = []string{"Ubuntu", "Debian", "CentOS", "Fedora"}
	defaultServices = []string{"nginx", "apache2", "mysql", "postgresql", "redis", "docker"}
)

// createForm holds the choices offered by the create page.
type createForm struct {
	OSTypes  []string
	Services []string
}

func newCreateForm(osTypes, services []string) createForm {
	if len(osTypes) == 0 {
		osTypes = defaultOSTypes
	}
	if len(services) == 0 {
		services = defaultServices
	}
	return createForm{OSTypes: osTypes, Services: services}
}

// parseCreateRequest reads the create form. Numeric fields that do not parse
// are reported as validation errors; range checks are left to the workflow.
func parseCreateRequest(r *http.Request) (vm.CreateRequest, error) {
	if err := r.ParseForm(); err != nil {
		return vm.CreateRequest{}, &vm.ValidationError{Field: "form", Message: "Invalid form submission"}
	}

	req := vm.CreateRequest{
		Name:     r.PostForm.Get("name"),
		OSType:   r.PostForm.Get("os_type"),
		Services: r.PostForm["services"],
		Username: strings.TrimSpace(r.PostForm.Get("username")),
		Password: strings.TrimSpace(r.PostForm.Get("password")),
		Sudo:     checked(r, "sudo"),
	}

	fields := []struct {
		key   string
		label string
		dst   *int
	}{
		{"cpu", "CPU cores", &req.CPU},
		{"ram", "RAM size", &req.RAM},
		{"storage", "Storage size", &req.Storage},
	}
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(r.PostForm.Get(f.key)))
		if err != nil {
			return req, &vm.ValidationError{Field: f.key, Message: f.label + " must be a whole number"}
		}
		*f.dst = n
	}

	return req, nil
}

// checked reports whether a checkbox was submitted, whatever its value.
func checked(r *http.Request, key string) bool {
	_, ok := r.PostForm[key]
	return ok
}

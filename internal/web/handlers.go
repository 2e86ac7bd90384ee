package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jbweber/anvil/internal/vm"
)

const unexpectedError = "An unexpected error occurred"

// actionText holds the flash wording for each lifecycle action.
var actionText = map[vm.Action]struct{ verb, past string }{
	vm.ActionStart:  {"starting", "started"},
	vm.ActionStop:   {"stopping", "stopped"},
	vm.ActionDelete: {"deleting", "deleted"},
}

// HTTPResponse is the JSON envelope of API failures.
type HTTPResponse struct {
	Error   string `json:"error"`
	Output  string `json:"output,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func (s *Server) writeResponse(w http.ResponseWriter, r *http.Request, code int, resp HTTPResponse) {
	body, err := json.Marshal(resp)
	if err != nil {
		s.requestLogger(r).WithError(err).Error("failed to marshal response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, code, append(body, '\n'))
}

// instanceID reads the numeric {id} route variable. The route pattern
// already restricts it to digits.
func instanceID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 0)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// failureMessage turns a workflow error into flash text. prefix introduces
// external failures, e.g. "Error creating VM".
func (s *Server) failureMessage(r *http.Request, err error, prefix string) string {
	var valErr *vm.ValidationError
	var extErr *vm.ExternalError

	switch {
	case errors.As(err, &valErr):
		return valErr.Message + "!"
	case errors.As(err, &extErr):
		return fmt.Sprintf("%s: %s", prefix, extErr.Diagnostic())
	default:
		s.requestLogger(r).WithError(err).Error("request failed")
		return unexpectedError
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	instances, err := s.mgr.List(r.Context())
	if err != nil {
		s.requestLogger(r).WithError(err).Error("failed to list instances")
		http.Error(w, unexpectedError, http.StatusInternalServerError)
		return
	}
	s.render(w, r, "index", "Servers", instances)
}

func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "create", "Create server", s.form)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, err := parseCreateRequest(r)
	if err == nil {
		var res *vm.CreateResult
		res, err = s.mgr.Create(r.Context(), req)
		if err == nil {
			msgs := []flash{{Category: flashSuccess, Message: fmt.Sprintf("Server %q created successfully!", res.Instance.Name)}}
			if res.UserErr != nil {
				msgs = append(msgs, flash{Category: flashWarning, Message: s.failureMessage(r, res.UserErr, "User provisioning failed")})
			}
			s.addFlash(w, r, msgs...)
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
	}

	var msg string
	if errors.Is(err, vm.ErrDuplicateName) {
		msg = fmt.Sprintf("Server with name %q already exists!", strings.TrimSpace(req.Name))
	} else {
		msg = s.failureMessage(r, err, "Error creating VM")
	}
	s.redirect(w, r, "/create", flashError, msg)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	action, err := vm.ParseAction(mux.Vars(r)["action"])
	if err != nil {
		s.redirect(w, r, "/", flashError, "Invalid action!")
		return
	}
	id, ok := instanceID(r)
	if !ok {
		s.redirect(w, r, "/", flashError, "Server not found!")
		return
	}

	inst, err := s.mgr.Perform(r.Context(), action, id)
	text := actionText[action]
	switch {
	case err == nil:
		s.redirect(w, r, "/", flashSuccess, fmt.Sprintf("Server %q %s successfully!", inst.Name, text.past))
	case errors.Is(err, vm.ErrNotFound):
		s.redirect(w, r, "/", flashError, "Server not found!")
	default:
		s.redirect(w, r, "/", flashError, s.failureMessage(r, err, "Error "+text.verb+" server"))
	}
}

func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceID(r)
	if !ok {
		s.redirect(w, r, "/", flashError, "Source server not found!")
		return
	}
	if err := r.ParseForm(); err != nil {
		s.redirect(w, r, "/", flashError, "Invalid form submission!")
		return
	}

	req := vm.CloneRequest{NewName: r.PostForm.Get("new_name")}
	clone, err := s.mgr.Clone(r.Context(), id, req)
	switch {
	case err == nil:
		s.redirect(w, r, "/", flashSuccess, fmt.Sprintf("Server cloned to %q successfully!", clone.Name))
	case errors.Is(err, vm.ErrNotFound):
		s.redirect(w, r, "/", flashError, "Source server not found!")
	case errors.Is(err, vm.ErrDuplicateName):
		s.redirect(w, r, "/", flashError, fmt.Sprintf("Server with name %q already exists!", strings.TrimSpace(req.NewName)))
	default:
		s.redirect(w, r, "/", flashError, s.failureMessage(r, err, "Error cloning server"))
	}
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	id, _ := instanceID(r)
	details, err := s.mgr.Details(r.Context(), id)
	if err != nil {
		if errors.Is(err, vm.ErrNotFound) {
			s.redirect(w, r, "/", flashError, "Server not found!")
			return
		}
		s.redirect(w, r, "/", flashError, s.failureMessage(r, err, "Error loading server"))
		return
	}
	s.render(w, r, "details", details.Instance.Name, details)
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	id, _ := instanceID(r)
	inst, err := s.mgr.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, vm.ErrNotFound) {
			s.redirect(w, r, "/", flashError, "Server not found!")
			return
		}
		s.redirect(w, r, "/", flashError, s.failureMessage(r, err, "Error loading server"))
		return
	}
	s.render(w, r, "monitor", "Monitor "+inst.Name, inst)
}

// handleStats serves the stats document verbatim. Script and parse failures
// are reported in the body with a 200 so the monitor page keeps polling.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	id, _ := instanceID(r)
	doc, err := s.mgr.Stats(r.Context(), id)

	var parseErr *vm.StatsParseError
	var extErr *vm.ExternalError

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, doc)
	case errors.Is(err, vm.ErrNotFound):
		s.writeResponse(w, r, http.StatusNotFound, HTTPResponse{Error: "VM not found"})
	case errors.As(err, &parseErr):
		s.writeResponse(w, r, http.StatusOK, HTTPResponse{Error: "Failed to parse stats", Output: parseErr.Raw})
	case errors.As(err, &extErr):
		s.writeResponse(w, r, http.StatusOK, HTTPResponse{Error: "Failed to get stats", Message: extErr.Diagnostic()})
	default:
		s.requestLogger(r).WithError(err).Error("failed to get stats")
		s.writeResponse(w, r, http.StatusInternalServerError, HTTPResponse{Error: unexpectedError})
	}
}

func (s *Server) handleInstallService(w http.ResponseWriter, r *http.Request) {
	id, _ := instanceID(r)
	details := fmt.Sprintf("/instance/details/%d", id)
	if err := r.ParseForm(); err != nil {
		s.redirect(w, r, details, flashError, "Invalid form submission!")
		return
	}

	req := vm.InstallServiceRequest{ServiceName: r.PostForm.Get("service_name")}
	svc, err := s.mgr.InstallService(r.Context(), id, req)
	switch {
	case err == nil:
		s.redirect(w, r, details, flashSuccess, fmt.Sprintf("Service %q installed successfully!", svc.ServiceName))
	case errors.Is(err, vm.ErrNotFound):
		s.redirect(w, r, "/", flashError, "Server not found!")
	default:
		s.redirect(w, r, details, flashError, s.failureMessage(r, err, "Error installing service"))
	}
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	id, _ := instanceID(r)
	details := fmt.Sprintf("/instance/details/%d", id)
	if err := r.ParseForm(); err != nil {
		s.redirect(w, r, details, flashError, "Invalid form submission!")
		return
	}

	req := vm.CreateUserRequest{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
		Sudo:     checked(r, "sudo"),
	}
	user, err := s.mgr.CreateUser(r.Context(), id, req)
	switch {
	case err == nil:
		s.redirect(w, r, details, flashSuccess, fmt.Sprintf("User %q created successfully!", user.Username))
	case errors.Is(err, vm.ErrNotFound):
		s.redirect(w, r, "/", flashError, "Server not found!")
	default:
		s.redirect(w, r, details, flashError, s.failureMessage(r, err, "Error creating user"))
	}
}

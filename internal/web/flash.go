package web

import (
	"net/http"
)

const sessionName = "anvil"

// Flash categories, rendered as CSS classes.
const (
	flashSuccess = "success"
	flashError   = "error"
	flashWarning = "warning"
)

var flashCategories = []string{flashSuccess, flashWarning, flashError}

// flash is a one-shot message shown on the next rendered page.
type flash struct {
	Category string
	Message  string
}

// addFlash queues messages for the next page and saves the session once.
// A session that cannot be saved only loses the messages.
func (s *Server) addFlash(w http.ResponseWriter, r *http.Request, msgs ...flash) {
	sess, err := s.sessions.Get(r, sessionName)
	if err != nil {
		s.requestLogger(r).WithError(err).Debug("discarding unreadable session")
	}
	for _, m := range msgs {
		sess.AddFlash(m.Message, m.Category)
	}
	if err := sess.Save(r, w); err != nil {
		s.requestLogger(r).WithError(err).Warn("failed to save flash message")
	}
}

// takeFlashes returns and clears the queued messages. It must run before the
// response body is written.
func (s *Server) takeFlashes(w http.ResponseWriter, r *http.Request) []flash {
	sess, err := s.sessions.Get(r, sessionName)
	if err != nil {
		return nil
	}

	var out []flash
	for _, category := range flashCategories {
		for _, v := range sess.Flashes(category) {
			if msg, ok := v.(string); ok {
				out = append(out, flash{Category: category, Message: msg})
			}
		}
	}
	if len(out) > 0 {
		if err := sess.Save(r, w); err != nil {
			s.requestLogger(r).WithError(err).Warn("failed to clear flash messages")
		}
	}
	return out
}

// redirect queues a flash and sends the browser to url.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, url, category, message string) {
	s.addFlash(w, r, flash{Category: category, Message: message})
	http.Redirect(w, r, url, http.StatusFound)
}

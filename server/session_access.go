package server

import "strings"

// handleUSER stashes the offered identity and asks for a password. The
// name is not resolved here: validation is deferred to PASS so the reply
// never reveals whether an account exists. Anonymous gets the
// email-as-password prompt instead of the generic one.
func (s *session) handleUSER(user string) error {
	if s.isLoggedIn {
		s.reply(503, "Already logged in.")
		return nil
	}
	if user == "" {
		s.reply(501, "Syntax error in parameters or arguments.")
		return nil
	}

	s.user = user
	if strings.EqualFold(user, "anonymous") {
		s.reply(331, "Guest login okay, send your email address as password.")
		return nil
	}
	s.reply(331, "User name okay, need password.")
	return nil
}

// handlePASS resolves the identity stashed by USER against the driver.
// On refusal the session stays alive in the pre-auth state so the client
// can retry with another USER/PASS pair.
func (s *session) handlePASS(pass string) error {
	if s.isLoggedIn {
		s.reply(503, "Already logged in.")
		return nil
	}
	if s.user == "" {
		s.reply(503, "Login with USER first.")
		return nil
	}

	ctx, err := s.server.driver.Authenticate(s.user, pass, "")
	if err != nil {
		s.server.logger.Warn("authentication_failed",
			"session_id", s.sessionID,
			"remote_ip", s.redactIP(s.remoteIP),
			"user", s.user,
			"reason", err.Error(),
		)
		if s.server.metricsCollector != nil {
			s.server.metricsCollector.RecordAuthentication(false, s.user)
		}
		s.reply(530, "Login incorrect.")
		return nil
	}

	s.fs = ctx
	s.isLoggedIn = true

	s.server.logger.Info("authentication_success",
		"session_id", s.sessionID,
		"remote_ip", s.redactIP(s.remoteIP),
		"user", s.user,
	)
	if s.server.metricsCollector != nil {
		s.server.metricsCollector.RecordAuthentication(true, s.user)
	}

	s.reply(230, "User logged in, proceed.")
	return nil
}

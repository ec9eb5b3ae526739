// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"

	"github.com/holomush/authkit/internal/auth"
	"github.com/holomush/authkit/internal/mail"
	"github.com/holomush/authkit/internal/user"
	"github.com/holomush/authkit/pkg/errutil"
)

type registerDocument struct {
	Data struct {
		Type       string         `json:"type"`
		Attributes map[string]any `json:"attributes"`
	} `json:"data"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerDocument
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Data.Type != "" && body.Data.Type != user.TypeName {
		s.writeError(w, r, auth.Unprocessable("WEB_WRONG_TYPE", "data.type must be %s", user.TypeName))
		return
	}
	attrs, err := stringValues(body.Data.Attributes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.opts.Users.Register(r.Context(), attrs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if s.opts.Mailer != nil {
		s.sendWelcome(r, u)
	}
	writeJSON(w, http.StatusCreated, userDocument(u))
}

// sendWelcome mails the new user. Failures are logged; the account exists
// either way.
func (s *Server) sendWelcome(r *http.Request, u *user.User) {
	name := u.Username
	if name == "" {
		name = u.Email
	}
	msg, err := mail.Welcome(u.Email, mail.WelcomeData{Name: name})
	if err == nil {
		err = s.opts.Mailer.Send(r.Context(), msg)
	}
	if err != nil {
		errutil.LogErrorContext(r.Context(), s.logger.With("request_id", RequestID(r.Context())), "failed to send welcome mail", err)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := s.authRequest(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	identity, err := s.opts.Identities.Authenticate(r.Context(), req, auth.Allow(auth.PasswordStrategyName))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	token, expiresAt, err := s.opts.Tokens.Issue(s.opts.Identities.TypeName(), identity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

func (s *Server) handleSendResetPassword(w http.ResponseWriter, r *http.Request) {
	params, err := decodeParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.opts.Resets.RequestReset(r.Context(), params[user.FieldEmail]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	params, err := decodeParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.opts.Resets.ResetPassword(r.Context(), params["token"], params[s.opts.Users.SecretField()]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	req, err := s.authRequest(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	identity, err := s.opts.Identities.Authenticate(r.Context(), req, auth.AllowAll())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, ok := identity.(*user.User)
	if !ok || u == nil {
		s.writeError(w, r, auth.Internal("WEB_UNEXPECTED_IDENTITY", "authenticated identity is %T", identity))
		return
	}
	writeJSON(w, http.StatusOK, userDocument(u))
}

// authRequest builds an authentication request from the query, headers and,
// when withBody is set, a flat JSON body.
func (s *Server) authRequest(r *http.Request, withBody bool) (*auth.Request, error) {
	params := auth.Params{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	if withBody {
		body, err := decodeParams(r)
		if err != nil {
			return nil, err
		}
		for k, v := range body {
			params[k] = v
		}
	}
	return &auth.Request{
		ID:     RequestID(r.Context()),
		Params: params,
		Header: r.Header,
	}, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/holomush/authkit/internal/auth"
	"github.com/holomush/authkit/internal/user"
	"github.com/holomush/authkit/pkg/errutil"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

const contentType = "application/vnd.api+json"

type errorObject struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Title  string `json:"title"`
}

type errorDocument struct {
	Errors []errorObject `json:"errors"`
}

type resource struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Attributes map[string]any `json:"attributes"`
}

type document struct {
	Data resource `json:"data"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrorStatus(w http.ResponseWriter, status int, title string) {
	writeJSON(w, status, errorDocument{Errors: []errorObject{{
		Status: strconv.Itoa(status),
		Title:  title,
	}}})
}

// writeError maps err to its status and public message. Internal errors are
// logged with their full context and never echoed to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := auth.HTTPStatus(err)
	if auth.KindOf(err) == auth.KindInternal {
		errutil.LogErrorContext(r.Context(), s.logger.With("request_id", RequestID(r.Context())), "request failed", err)
	}
	writeJSON(w, status, errorDocument{Errors: []errorObject{{
		Status: strconv.Itoa(status),
		Code:   auth.KindOf(err).String(),
		Title:  auth.PublicMessage(err),
	}}})
}

func userDocument(u *user.User) document {
	attrs := map[string]any{
		user.FieldEmail: u.Email,
		"created_at":    u.CreatedAt,
		"updated_at":    u.UpdatedAt,
	}
	if u.Username != "" {
		attrs[user.FieldUsername] = u.Username
	}
	return document{Data: resource{Type: user.TypeName, ID: u.ID.String(), Attributes: attrs}}
}

// decodeParams reads a flat JSON object of string values.
func decodeParams(r *http.Request) (auth.Params, error) {
	raw := map[string]any{}
	if err := decodeBody(r, &raw); err != nil {
		return nil, err
	}
	return stringValues(raw)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return auth.Unprocessable("WEB_MALFORMED_BODY", "request body must be a JSON object")
	}
	return nil
}

func stringValues(raw map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			return nil, auth.Unprocessable("WEB_MALFORMED_BODY", "%s must be a string", k)
		}
	}
	return out, nil
}

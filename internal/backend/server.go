/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dashpoint/internal/domain"
	applog "dashpoint/internal/log"
	"dashpoint/internal/version"

	json "github.com/goccy/go-json"
)

const (
	maxBodyBytes = 4 << 20
	defaultLimit = 20
	maxLimit     = 100
)

// AdminKeyHeader carries the key that authorizes token minting.
const AdminKeyHeader = "X-Admin-Key"

// Server is the reference collection API. Collections are scoped to the
// subject of the bearer token.
type Server struct {
	repo     Repo
	secret   string
	adminKey string
	dev      bool
	log      *slog.Logger
	now      func() time.Time
}

// ServerOptions configure NewServerWithOptions.
type ServerOptions struct {
	// Secret signs bearer tokens. Empty falls back to an insecure development
	// secret and turns on Dev.
	Secret string
	// AdminKey must accompany POST /api/auth/token outside dev mode. Without
	// it and without Dev the route is not served.
	AdminKey string
	// Dev lets any caller mint a token for any subject.
	Dev bool
}

// NewServer builds a server over repo that only mints tokens in dev mode,
// that is when secret is empty.
func NewServer(repo Repo, secret string) *Server {
	return NewServerWithOptions(repo, ServerOptions{Secret: secret})
}

// NewServerWithOptions builds a server over repo.
func NewServerWithOptions(repo Repo, o ServerOptions) *Server {
	l := applog.WithComponent("backend")
	if o.Secret == "" {
		o.Secret = "dev-secret-change-me"
		o.Dev = true
		l.Warn("auth secret not set; using insecure dev secret")
	}
	switch {
	case o.Dev:
		l.Warn("dev mode: anyone can mint tokens for any subject")
	case o.AdminKey == "":
		l.Info("token minting disabled; set an admin key to enable it")
	}
	return &Server{repo: repo, secret: o.Secret, adminKey: o.AdminKey, dev: o.Dev, log: l, now: time.Now}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.repo.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("dashpoint " + version.String()))
	})
	if s.dev || s.adminKey != "" {
		mux.HandleFunc("POST /api/auth/token", s.handleToken)
	}

	mux.HandleFunc("GET /api/collections", s.withAuth(s.handleList))
	mux.HandleFunc("POST /api/collections", s.withAuth(s.handleCreate))
	mux.HandleFunc("GET /api/collections/{id}", s.withAuth(s.handleGet))
	mux.HandleFunc("GET /api/collections/{id}/items", s.withAuth(s.handleGetWithItems))
	mux.HandleFunc("PUT /api/collections/{id}", s.withAuth(s.handleUpdate))
	mux.HandleFunc("DELETE /api/collections/{id}", s.withAuth(s.handleDelete))
	mux.HandleFunc("POST /api/collections/{id}/items", s.withAuth(s.handleAddItem))
	mux.HandleFunc("DELETE /api/collections/{id}/items/{itemType}/{itemId}", s.withAuth(s.handleRemoveItem))
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// envelope is the response shape of every /api route.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, status int, msg string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: msg, Data: data})
}

func writeFail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

// writeErr maps repository and validation errors to responses.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var fe *fieldError
	switch {
	case errors.As(err, &fe):
		writeFail(w, http.StatusBadRequest, "Validation failed: "+fe.Error())
	case errors.Is(err, ErrNotFound):
		writeFail(w, http.StatusNotFound, "Collection not found")
	case errors.Is(err, ErrConflict):
		writeFail(w, http.StatusConflict, "Collection with this name already exists")
	default:
		s.log.ErrorContext(r.Context(), "request failed", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("err", err))
		writeFail(w, http.StatusInternalServerError, "Internal server error")
	}
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxBodyBytes {
		return nil, invalid("body", "too large")
	}
	return b, nil
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject    string `json:"subject"`
		TTLSeconds int64  `json:"ttl_seconds"`
	}
	if !s.dev && !hmac.Equal([]byte(r.Header.Get(AdminKeyHeader)), []byte(s.adminKey)) {
		writeFail(w, http.StatusForbidden, "Token minting requires the admin key")
		return
	}
	b, err := readBody(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if len(bytes.TrimSpace(b)) > 0 {
		if err := json.Unmarshal(b, &req); err != nil {
			s.writeErr(w, r, invalid("body", "malformed JSON"))
			return
		}
	}
	if req.Subject == "" {
		req.Subject = "dev"
	}
	if req.TTLSeconds <= 0 || req.TTLSeconds > 24*3600 {
		req.TTLSeconds = 3600
	}
	exp := s.now().Add(time.Duration(req.TTLSeconds) * time.Second)
	tok, err := signToken(s.secret, req.Subject, exp)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      tok,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, owner string) {
	q := ListQuery{Search: r.URL.Query().Get("search"), Page: 1, Limit: defaultLimit}
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		q.Page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		q.Limit = min(v, maxLimit)
	}
	list, total, err := s.repo.ListCollections(r.Context(), owner, q)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", map[string]any{
		"collections": list,
		"pagination": map[string]int{
			"current": q.Page,
			"pages":   int(math.Ceil(float64(total) / float64(q.Limit))),
			"total":   total,
		},
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, owner string) {
	c, err := s.repo.GetCollection(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", c.Collection)
}

func (s *Server) handleGetWithItems(w http.ResponseWriter, r *http.Request, owner string) {
	c, err := s.repo.GetCollection(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", c)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, owner string) {
	b, err := readBody(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	u, err := parseCollectionBody(b, true)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	c := domain.Collection{Name: *u.Name, Color: "#3B82F6", Icon: "Folder", IsPrivate: true}
	if u.Description != nil {
		c.Description = *u.Description
	}
	if u.Color != nil {
		c.Color = *u.Color
	}
	if u.Icon != nil {
		c.Icon = *u.Icon
	}
	if u.Tags != nil {
		c.Tags = *u.Tags
	}
	if u.IsPrivate != nil {
		c.IsPrivate = *u.IsPrivate
	}
	if u.LayoutsSet {
		c.Layouts = u.Layouts
	}
	created, err := s.repo.CreateCollection(r.Context(), owner, c)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "Collection created successfully", created)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, owner string) {
	b, err := readBody(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	u, err := parseCollectionBody(b, false)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	c, err := s.repo.UpdateCollection(r.Context(), owner, r.PathValue("id"), u)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if u.LayoutsSet {
		s.log.DebugContext(r.Context(), "layouts updated", slog.Int("bytes", len(u.Layouts)))
	}
	writeOK(w, http.StatusOK, "Collection updated successfully", c)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, owner string) {
	if err := s.repo.DeleteCollection(r.Context(), owner, r.PathValue("id")); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Collection deleted successfully", nil)
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request, owner string) {
	b, err := readBody(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	it, err := parseItemBody(b)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	c, err := s.repo.AddItem(r.Context(), owner, r.PathValue("id"), it)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Item added to collection successfully", c)
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request, owner string) {
	c, err := s.repo.RemoveItem(r.Context(), owner, r.PathValue("id"), r.PathValue("itemType"), r.PathValue("itemId"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Item removed from collection successfully", c)
}

// --- auth ---

type tokenClaims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"` // unix seconds
}

func signToken(secret, subject string, exp time.Time) (string, error) {
	b, err := json.Marshal(tokenClaims{Sub: subject, Exp: exp.Unix()})
	if err != nil {
		return "", err
	}
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(b)
	return base64.RawURLEncoding.EncodeToString(b) + "." + base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

func verifyToken(secret, token string, now time.Time) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid token format")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("invalid token payload")
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("invalid token signature")
	}
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(payload)
	if !hmac.Equal(h.Sum(nil), sig) {
		return "", fmt.Errorf("bad signature")
	}
	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("bad claims")
	}
	if claims.Exp < now.Unix() {
		return "", fmt.Errorf("token expired")
	}
	if claims.Sub == "" {
		claims.Sub = "dev"
	}
	return claims.Sub, nil
}

func (s *Server) withAuth(next func(w http.ResponseWriter, r *http.Request, subject string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		const prefix = "bearer "
		if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
			writeFail(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		sub, err := verifyToken(s.secret, strings.TrimSpace(auth[len(prefix):]), s.now())
		if err != nil {
			writeFail(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if id := r.PathValue("id"); id != "" {
			r = r.WithContext(applog.ContextWithCollection(r.Context(), id))
		}
		next(w, r, sub)
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"classlink/internal/auth"
	"classlink/internal/session"
	ws "classlink/internal/websocket"
	"classlink/pkg/interfaces"
	"classlink/pkg/types"
)

const (
	cookieName   = "classlink_auth"
	cookieMaxAge = 12 * 60 * 60 // one school day, in seconds
)

// Server exposes the teacher dashboard and student endpoints over HTTP.
type Server struct {
	store      interfaces.Store
	sessions   *session.Manager
	auth       *auth.Service
	wsHandler  *ws.Handler
	registry   *ws.Registry
	cookies    *sessions.CookieStore
	httpServer *http.Server
	logger     *zap.Logger
	startTime  time.Time
}

// Config holds the HTTP server settings.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CookieSecret string
}

// ErrorResponse is the JSON shape for all error replies.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// NewServer wires the HTTP routes. A missing cookie secret gets a
// random key, which logs every teacher out on restart.
func NewServer(config *Config, store interfaces.Store, sessionMgr *session.Manager, authSvc *auth.Service, wsHandler *ws.Handler, registry *ws.Registry, logger *zap.Logger) *Server {
	secret := []byte(config.CookieSecret)
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
	}
	cookies := sessions.NewCookieStore(secret)
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	s := &Server{
		store:     store,
		sessions:  sessionMgr,
		auth:      authSvc,
		wsHandler: wsHandler,
		registry:  registry,
		cookies:   cookies,
		logger:    logger,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/register", s.handleRegister)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/logout", s.handleLogout)
	mux.HandleFunc("/api/reset-password", s.handleResetPassword)
	mux.HandleFunc("/api/session", s.requireAuth(s.handleOwnSession))
	mux.HandleFunc("/api/session/active", s.requireAuth(s.handleSetActive))
	mux.HandleFunc("/api/sessions/", s.handlePublicSession)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.corsMiddleware(s.loggingMiddleware(mux)),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// middleware

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

// requireAuth resolves the signed cookie to a teacher identity and
// passes it to the wrapped handler.
func (s *Server) requireAuth(next func(w http.ResponseWriter, r *http.Request, teacherID, username string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := s.cookies.Get(r, cookieName)
		if err != nil {
			s.sendError(w, http.StatusUnauthorized, "unauthorized", "login required")
			return
		}
		teacherID, ok := cookie.Values["teacher_id"].(string)
		if !ok || teacherID == "" {
			s.sendError(w, http.StatusUnauthorized, "unauthorized", "login required")
			return
		}
		username, _ := cookie.Values["username"].(string)
		next(w, r, teacherID, username)
	}
}

// auth endpoints

type registerRequest struct {
	TeacherID string `json:"teacher_id"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	recoveryCode, err := s.auth.Register(r.Context(), req.TeacherID, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateID):
			s.sendError(w, http.StatusConflict, "teacher ID already taken", "")
		case errors.Is(err, types.ErrInvalidTeacherID), errors.Is(err, auth.ErrEmptyPassword):
			s.sendError(w, http.StatusBadRequest, "invalid registration", err.Error())
		default:
			s.logger.Error("registration failed", zap.Error(err))
			s.sendError(w, http.StatusInternalServerError, "registration failed", "")
		}
		return
	}

	username := req.Username
	if username == "" {
		username = req.TeacherID
	}
	s.setAuthCookie(w, r, req.TeacherID, username)
	s.sendJSON(w, http.StatusCreated, map[string]string{
		"teacher_id":    req.TeacherID,
		"username":      username,
		"recovery_code": recoveryCode,
	})
}

type loginRequest struct {
	TeacherID string `json:"teacher_id"`
	Password  string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	cred, err := s.auth.Login(r.Context(), req.TeacherID, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.sendError(w, http.StatusUnauthorized, "invalid credentials", "")
			return
		}
		s.logger.Error("login failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "login failed", "")
		return
	}

	s.setAuthCookie(w, r, cred.TeacherID, cred.Username)
	s.sendJSON(w, http.StatusOK, map[string]string{
		"teacher_id": cred.TeacherID,
		"username":   cred.Username,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	cookie, _ := s.cookies.Get(r, cookieName)
	if teacherID, ok := cookie.Values["teacher_id"].(string); ok && teacherID != "" {
		s.sessions.Unload(teacherID)
	}
	cookie.Options.MaxAge = -1
	if err := cookie.Save(r, w); err != nil {
		s.logger.Warn("failed to clear auth cookie", zap.Error(err))
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

type resetPasswordRequest struct {
	TeacherID    string `json:"teacher_id"`
	RecoveryCode string `json:"recovery_code"`
	NewPassword  string `json:"new_password"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := s.auth.ResetPassword(r.Context(), req.TeacherID, req.RecoveryCode, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidRecoveryCode), errors.Is(err, auth.ErrInvalidCredentials):
			s.sendError(w, http.StatusUnauthorized, "invalid recovery code", "")
		case errors.Is(err, auth.ErrEmptyPassword):
			s.sendError(w, http.StatusBadRequest, "invalid password", err.Error())
		default:
			s.logger.Error("password reset failed", zap.Error(err))
			s.sendError(w, http.StatusInternalServerError, "password reset failed", "")
		}
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// teacher session endpoints

func (s *Server) handleOwnSession(w http.ResponseWriter, r *http.Request, teacherID, username string) {
	switch r.Method {
	case http.MethodGet:
		s.getOwnSession(w, r, teacherID, username)
	case http.MethodPut:
		s.putOwnSession(w, r, teacherID, username)
	default:
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	}
}

func (s *Server) getOwnSession(w http.ResponseWriter, r *http.Request, teacherID, username string) {
	sess, err := s.sessions.Load(r.Context(), teacherID, username)
	if err != nil {
		s.logger.Error("failed to load session", zap.String("teacher_id", teacherID), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to load session", "")
		return
	}
	s.sendJSON(w, http.StatusOK, sess)
}

type putSessionRequest struct {
	Slots        []types.Slot `json:"slots"`
	ActiveSlotID *string      `json:"active_slot_id"`
}

func (s *Server) putOwnSession(w http.ResponseWriter, r *http.Request, teacherID, username string) {
	var req putSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	// Dashboard saves may arrive after a server restart, before any GET
	// re-populated the working copy.
	if _, err := s.sessions.Load(r.Context(), teacherID, username); err != nil {
		s.logger.Error("failed to load session", zap.String("teacher_id", teacherID), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to load session", "")
		return
	}

	if err := s.sessions.Replace(r.Context(), teacherID, req.Slots, req.ActiveSlotID); err != nil {
		switch {
		case errors.Is(err, types.ErrTooManySlots),
			errors.Is(err, types.ErrInvalidSlotID),
			errors.Is(err, types.ErrDuplicateSlotID),
			errors.Is(err, types.ErrInvalidTeacherID):
			s.sendError(w, http.StatusBadRequest, "invalid session", err.Error())
		case errors.Is(err, session.ErrSaveFailed):
			s.logger.Error("failed to save session", zap.String("teacher_id", teacherID), zap.Error(err))
			s.sendError(w, http.StatusInternalServerError, "failed to save session", "")
		default:
			s.logger.Error("failed to replace session", zap.String("teacher_id", teacherID), zap.Error(err))
			s.sendError(w, http.StatusInternalServerError, "failed to save session", "")
		}
		return
	}

	sess, err := s.sessions.Get(teacherID)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "failed to load session", "")
		return
	}
	s.sendJSON(w, http.StatusOK, sess)
}

type setActiveRequest struct {
	SlotID *string `json:"slot_id"`
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request, teacherID, username string) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if _, err := s.sessions.Load(r.Context(), teacherID, username); err != nil {
		s.logger.Error("failed to load session", zap.String("teacher_id", teacherID), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to load session", "")
		return
	}

	if err := s.sessions.SetActive(r.Context(), teacherID, req.SlotID); err != nil {
		switch {
		case errors.Is(err, session.ErrSlotNotFound):
			s.sendError(w, http.StatusNotFound, "slot not found", "")
		case errors.Is(err, session.ErrSaveFailed):
			s.logger.Error("failed to save active slot", zap.String("teacher_id", teacherID), zap.Error(err))
			s.sendError(w, http.StatusInternalServerError, "failed to save session", "")
		default:
			s.logger.Error("failed to set active slot", zap.String("teacher_id", teacherID), zap.Error(err))
			s.sendError(w, http.StatusInternalServerError, "failed to save session", "")
		}
		return
	}

	sess, err := s.sessions.Get(teacherID)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "failed to load session", "")
		return
	}
	s.sendJSON(w, http.StatusOK, sess)
}

// student endpoints

// handlePublicSession is the unauthenticated fetch students poll when
// the push channel is unavailable.
func (s *Server) handlePublicSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	teacherID := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if teacherID == "" || strings.Contains(teacherID, "/") {
		s.sendError(w, http.StatusBadRequest, "teacher ID required", "")
		return
	}
	if !types.IsValidTeacherID(teacherID) {
		s.sendError(w, http.StatusBadRequest, "invalid teacher ID", "")
		return
	}

	sess, err := s.store.GetSession(r.Context(), teacherID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			s.sendError(w, http.StatusNotFound, "session not found", "")
			return
		}
		s.logger.Error("failed to fetch session", zap.String("teacher_id", teacherID), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to fetch session", "")
		return
	}
	s.sendJSON(w, http.StatusOK, sess)
}

// health

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	status := "healthy"
	code := http.StatusOK
	if err := s.store.HealthCheck(r.Context()); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
		s.logger.Warn("health check failed", zap.Error(err))
	}

	s.sendJSON(w, code, map[string]interface{}{
		"status":      status,
		"uptime":      time.Since(s.startTime).String(),
		"connections": s.registry.Stats(),
	})
}

// helpers

func (s *Server) setAuthCookie(w http.ResponseWriter, r *http.Request, teacherID, username string) {
	cookie, _ := s.cookies.Get(r, cookieName)
	cookie.Values["teacher_id"] = teacherID
	cookie.Values["username"] = username
	if err := cookie.Save(r, w); err != nil {
		s.logger.Warn("failed to set auth cookie", zap.Error(err))
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, code int, errMsg, detail string) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   errMsg,
		Code:    code,
		Message: detail,
	})
}

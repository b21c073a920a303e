package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"assignhub/internal/auth"
	"assignhub/internal/config"
	"assignhub/internal/crypto"
	"assignhub/internal/model"
	"assignhub/internal/repository"
)

type Server struct {
	cfg   config.Config
	store *repository.Store
	redis *redis.Client
}

func NewServer(cfg config.Config, store *repository.Store, redisClient *redis.Client) *Server {
	return &Server{
		cfg:   cfg,
		store: store,
		redis: redisClient,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.With(s.authMiddleware).Post("/logout", s.handleLogout)

	r.With(s.authMiddleware, s.requireRole("user")).Post("/upload", s.handleUpload)
	r.With(s.authMiddleware).Get("/admins", s.handleListAdmins)

	r.Route("/assignments", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireRole("admin"))
		r.Get("/", s.handleListAssignments)
		r.Post("/{assignmentId}/accept", s.handleDecide("accepted"))
		r.Post("/{assignmentId}/reject", s.handleDecide("rejected"))
	})

	return r
}

type accountSummary struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

type adminSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type assignmentSummary struct {
	ID                string `json:"id"`
	Task              string `json:"task"`
	SubmitterID       string `json:"submitterId"`
	SubmitterUsername string `json:"submitterUsername,omitempty"`
	AdminID           string `json:"adminId"`
	Status            string `json:"status"`
	CreatedAt         string `json:"createdAt"`
	DecidedAt         string `json:"decidedAt,omitempty"`
}

func mapAccountSummary(account model.Account) accountSummary {
	return accountSummary{
		ID:        account.ID,
		Username:  account.Username,
		Role:      account.Role,
		CreatedAt: account.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func mapAssignmentSummary(assignment model.Assignment) assignmentSummary {
	summary := assignmentSummary{
		ID:          assignment.ID,
		Task:        assignment.Task,
		SubmitterID: assignment.SubmitterID,
		AdminID:     assignment.AssigneeAdminID,
		Status:      assignment.Status,
		CreatedAt:   assignment.CreatedAt.UTC().Format(time.RFC3339),
	}
	if assignment.DecidedAt != nil {
		summary.DecidedAt = assignment.DecidedAt.UTC().Format(time.RFC3339)
	}
	return summary
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Role = strings.TrimSpace(strings.ToLower(req.Role))
	if req.Username == "" || req.Password == "" || req.Role == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if !isValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "password_hash_failed")
		return
	}

	account, err := s.store.CreateAccount(r.Context(), req.Username, hash, req.Role)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			writeError(w, http.StatusConflict, "username_taken")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, mapAccountSummary(account))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string         `json:"token"`
	Account accountSummary `json:"account"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	account, err := s.store.GetAccountByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := crypto.CheckPassword(account.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		UserID: account.ID,
		Role:   account.Role,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:   token,
		Account: mapAccountSummary(account),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.redis == nil {
		writeError(w, http.StatusServiceUnavailable, "revocation_not_configured")
		return
	}

	claims := claimsFromContext(r.Context())
	if claims == nil || claims.ExpiresAt == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	token := bearerToken(r.Header.Get("Authorization"))
	if err := s.redis.Set(r.Context(), revokedTokenKey(crypto.HashToken(token)), "1", ttl).Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type uploadRequest struct {
	Task    string `json:"task"`
	AdminID string `json:"adminId"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req uploadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Task = strings.TrimSpace(req.Task)
	req.AdminID = strings.TrimSpace(req.AdminID)
	if req.Task == "" || req.AdminID == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	admin, err := s.store.GetAccountByID(r.Context(), req.AdminID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusBadRequest, "unknown_admin")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if admin.Role != "admin" {
		writeError(w, http.StatusBadRequest, "unknown_admin")
		return
	}

	assignment, err := s.store.CreateAssignment(r.Context(), claims.UserID, req.Task, admin.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, mapAssignmentSummary(assignment))
}

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	assignments, err := s.store.ListAssignmentsForAdmin(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := make([]assignmentSummary, 0, len(assignments))
	for _, assignment := range assignments {
		summary := mapAssignmentSummary(assignment.Assignment)
		summary.SubmitterUsername = assignment.SubmitterUsername
		resp = append(resp, summary)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDecide(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assignmentID := chi.URLParam(r, "assignmentId")
		if assignmentID == "" {
			writeError(w, http.StatusBadRequest, "missing_assignment_id")
			return
		}

		assignment, err := s.store.DecideAssignment(r.Context(), assignmentID, status)
		if err != nil {
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				writeError(w, http.StatusNotFound, "assignment_not_found")
			case errors.Is(err, repository.ErrAlreadyDecided):
				writeError(w, http.StatusConflict, "already_decided")
			default:
				writeError(w, http.StatusInternalServerError, "server_error")
			}
			return
		}

		writeJSON(w, http.StatusOK, mapAssignmentSummary(assignment))
	}
}

func (s *Server) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := s.store.ListAccountsByRole(r.Context(), "admin")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := make([]adminSummary, 0, len(admins))
	for _, admin := range admins {
		resp = append(resp, adminSummary{
			ID:       admin.ID,
			Username: admin.Username,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		if s.redis != nil {
			revoked, err := s.redis.Exists(r.Context(), revokedTokenKey(crypto.HashToken(token))).Result()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "server_error")
				return
			}
			if revoked > 0 {
				writeError(w, http.StatusUnauthorized, "token_revoked")
				return
			}
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFromContext(r.Context())
			if claims == nil || claims.Role != role {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func isValidRole(role string) bool {
	switch role {
	case "user", "admin":
		return true
	default:
		return false
	}
}

func revokedTokenKey(tokenHash string) string {
	return "revoked_token:" + tokenHash
}

// bearerToken returns the credential from an Authorization header. Clients of
// the original API send the raw token with no scheme, so the Bearer prefix is
// optional here.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) >= 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

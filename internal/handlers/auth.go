package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"pdfchat/internal/auth"
	"pdfchat/internal/contextutil"
	"pdfchat/internal/storage"
)

// AuthHandler handles account registration and login.
type AuthHandler struct {
	users  storage.UserStore
	tokens *auth.Service
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users storage.UserStore, tokens *auth.Service) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

// RegisterRequest represents the registration payload.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// LoginRequest represents the login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateProfileRequest represents the profile update payload. Absent
// fields are left unchanged.
type UpdateProfileRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
}

// AuthResponse carries the bearer token and the account it belongs to.
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func userResponse(u *storage.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		CreatedAt: u.CreatedAt,
	}
}

// Register creates a new account and returns a token for it.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Username and email are required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	if _, err := h.users.GetByUsername(ctx, req.Username); err == nil {
		writeError(w, http.StatusConflict, "Username already taken")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		logger.ErrorContext(ctx, "failed to check username", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if _, err := h.users.GetByEmail(ctx, req.Email); err == nil {
		writeError(w, http.StatusConflict, "Email already registered")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		logger.ErrorContext(ctx, "failed to check email", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.ErrorContext(ctx, "failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user := &storage.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
	}
	id, err := h.users.Insert(ctx, user)
	if err != nil {
		logger.ErrorContext(ctx, "failed to create user", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	user.ID = id

	token, err := h.tokens.IssueToken(id)
	if err != nil {
		logger.ErrorContext(ctx, "failed to issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.InfoContext(ctx, "user registered", "user_id", id)
	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, User: userResponse(user)})
}

// Login verifies credentials and returns a fresh token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.users.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to load user", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := h.tokens.IssueToken(user.ID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: userResponse(user)})
}

// Profile returns the authenticated user's account.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := contextutil.UserIDFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		writeStorageError(w, r, err, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, userResponse(user))
}

// UpdateProfile changes the caller's email and full name. A new email
// must not belong to another account.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	userID, ok := contextutil.UserIDFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		writeStorageError(w, r, err, "User not found")
		return
	}

	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email == "" {
			writeError(w, http.StatusBadRequest, "Email cannot be empty")
			return
		}
		if existing, err := h.users.GetByEmail(ctx, email); err == nil && existing.ID != user.ID {
			writeError(w, http.StatusConflict, "Email already registered")
			return
		} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.ErrorContext(ctx, "failed to check email", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		user.Email = email
	}
	if req.FullName != nil {
		user.FullName = strings.TrimSpace(*req.FullName)
	}

	if err := h.users.Update(ctx, user); err != nil {
		logger.ErrorContext(ctx, "failed to update user", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.InfoContext(ctx, "profile updated", "user_id", userID)
	writeJSON(w, http.StatusOK, userResponse(user))
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dom/live-auction-server/internal/api/middleware"
	"github.com/dom/live-auction-server/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type RegisterRequest struct {
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type LoginRequest struct {
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type UserResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type AuthResponse struct {
	User         UserResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	if req.DisplayName == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "missing_fields", "displayName and password are required")
		return
	}

	result, err := h.authService.Register(r.Context(), service.RegisterInput{
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDisplayNameExists):
			respondError(w, http.StatusConflict, "display_name_taken", "Display name already exists")
		case errors.Is(err, service.ErrDisplayNameTooLong):
			respondError(w, http.StatusBadRequest, "display_name_too_long", "Display name exceeds 64 characters")
		default:
			respondError(w, http.StatusInternalServerError, "internal", "Failed to register")
		}
		return
	}

	respondJSON(w, http.StatusCreated, toAuthResponse(result))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}

	result, err := h.authService.Login(r.Context(), service.LoginInput{
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", "Failed to login")
		return
	}

	respondJSON(w, http.StatusOK, toAuthResponse(result))
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", "User not found")
		return
	}

	respondJSON(w, http.StatusOK, UserResponse{ID: user.ID.String(), DisplayName: user.DisplayName})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}

	if err := h.authService.Logout(r.Context(), userID); err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Failed to logout")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toAuthResponse(result *service.AuthResult) AuthResponse {
	return AuthResponse{
		User: UserResponse{
			ID:          result.User.ID.String(),
			DisplayName: result.User.DisplayName,
		},
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}
}

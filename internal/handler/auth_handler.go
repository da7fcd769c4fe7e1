package handler

import (
	"encoding/json"
	"net/http"

	"quicknotes/internal/domain"
	"quicknotes/internal/service"
	"quicknotes/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/golang/glog"
)

// AuthHandler serves the unauthenticated /auth routes: account creation,
// password login and access-token renewal.
type AuthHandler struct {
	authService *service.AuthService
	validator   *validator.Validate
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validator:   validator.New(),
	}
}

// decodeAuthRequest reads a JSON body into req and validates it, answering
// 400 itself when either step fails.
func (h *AuthHandler) decodeAuthRequest(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return false
	}
	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return false
	}
	return true
}

// Register creates the account but does not sign it in; notesctl logs in
// right after.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !h.decodeAuthRequest(w, r, &req) {
		return
	}

	if err := h.authService.Register(r.Context(), &req); err != nil {
		writeServiceError(w, err, "Failed to register user")
		return
	}

	response.Created(w, map[string]string{"message": "Account created for " + req.Username})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !h.decodeAuthRequest(w, r, &req) {
		return
	}

	loginResp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "Failed to log in")
		return
	}

	response.Success(w, loginResp)
}

// Refresh trades a refresh token for a new access token. The refresh token
// itself is not rotated.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshTokenRequest
	if !h.decodeAuthRequest(w, r, &req) {
		return
	}

	tokenResp, err := h.authService.RefreshToken(&req)
	if err != nil {
		glog.V(1).Infof("[auth] refresh refused: %v", err)
		response.Unauthorized(w, "Invalid or expired refresh token")
		return
	}

	response.Success(w, tokenResp)
}

// Logout is stateless: tokens are not tracked server side, so the client
// just drops them.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	response.Message(w, "Logged out successfully")
}

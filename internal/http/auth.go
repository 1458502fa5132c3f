package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"college-auth/internal/domain"
	"college-auth/internal/service"
)

const signupMessage = "User registered successfully"

type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned on a successful login only.
type LoginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// IdentityResponse describes the caller of an authenticated request.
type IdentityResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (h *Handler) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	_, err := h.registration.Register(c.Request.Context(), service.SignupInput{
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": signupMessage})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUserAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Username already exists"})
	default:
		h.internalError(c, "signup", err)
	}
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	identity, err := h.auth.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": service.ErrInvalidCredentials.Error()})
			return
		}
		h.internalError(c, "login", err)
		return
	}

	tok, err := h.tokens.Generate(*identity)
	if err != nil {
		h.internalError(c, "issue token", err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token: tok.Value,
		Role:  tok.Role,
	})
}

func (h *Handler) me(c *gin.Context) {
	identity, ok := IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, identityToResponse(identity))
}

func (h *Handler) adminPing(c *gin.Context) {
	identity, _ := IdentityFrom(c)
	c.JSON(http.StatusOK, gin.H{"ok": "ok", "username": identity.Username})
}

func (h *Handler) internalError(c *gin.Context, op string, err error) {
	h.logger.WithError(err).Errorf("%s failed", op)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func identityToResponse(identity domain.Identity) IdentityResponse {
	return IdentityResponse{
		Username: identity.Username,
		Role:     identity.PrimaryRole(),
	}
}

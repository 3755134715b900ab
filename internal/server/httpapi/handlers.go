package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gophaccount/internal/common"
	"github.com/dmitrijs2005/gophaccount/internal/server/models"
	"github.com/dmitrijs2005/gophaccount/internal/server/services"
	"github.com/gin-gonic/gin"
)

// AccountService is the part of services.AccountService the handlers use.
type AccountService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.Account, error)
	Verify(ctx context.Context, token string) (*models.Account, error)
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
}

type messageResponse struct {
	Message string `json:"message"`
}

type loginResponse struct {
	Message string         `json:"message"`
	Token   string         `json:"token"`
	User    models.Profile `json:"user"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug(c.Request.Context(), "register: bad request", "error", err)
		c.JSON(http.StatusBadRequest, messageResponse{Message: msgInvalidRequest})
		return
	}

	_, err := s.accounts.Register(c.Request.Context(), services.RegisterInput{
		GivenName:  strings.TrimSpace(req.GivenName),
		FamilyName: strings.TrimSpace(req.FamilyName),
		Username:   req.Username,
		Email:      strings.TrimSpace(req.Email),
		Password:   req.Password,
	})

	switch {
	case err == nil:
		c.JSON(http.StatusOK, messageResponse{Message: msgRegistered})
	case errors.Is(err, common.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, messageResponse{Message: msgEmailTaken})
	case errors.Is(err, common.ErrUsernameTaken):
		c.JSON(http.StatusBadRequest, messageResponse{Message: msgUsernameTaken})
	case errors.Is(err, common.ErrorValidation):
		c.JSON(http.StatusBadRequest, messageResponse{Message: msgInvalidRequest})
	default:
		c.JSON(http.StatusInternalServerError, messageResponse{Message: msgRegisterFailed})
	}
}

func (s *Server) verify(c *gin.Context) {
	_, err := s.accounts.Verify(c.Request.Context(), c.Param("token"))

	switch {
	case err == nil:
		c.String(http.StatusOK, msgVerified)
	case errors.Is(err, common.ErrInvalidOrExpiredToken):
		c.String(http.StatusBadRequest, msgInvalidToken)
	default:
		c.String(http.StatusInternalServerError, msgVerifyFailed)
	}
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, messageResponse{Message: msgInvalidRequest})
		return
	}

	res, err := s.accounts.Login(c.Request.Context(), strings.TrimSpace(req.Email), req.Password)

	switch {
	case err == nil:
		c.JSON(http.StatusOK, loginResponse{
			Message: msgLoggedIn,
			Token:   res.Token,
			User:    res.Account.Profile(),
		})
	case errors.Is(err, common.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, messageResponse{Message: msgInvalidCreds})
	default:
		c.JSON(http.StatusInternalServerError, messageResponse{Message: msgLoginFailed})
	}
}

func (s *Server) healthz(c *gin.Context) {
	if err := s.store.PingContext(c.Request.Context()); err != nil {
		s.logger.Warn(c.Request.Context(), "healthz: store ping failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/internal/auth"
)

type signupRequest struct {
	Username     string `json:"username" binding:"required,notblank,max=50"`
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=8,max=128"`
	CaptchaToken string `json:"captcha_token"`
}

type loginRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

type resendRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type roleRequest struct {
	Role string `json:"role" binding:"required,oneof=GENERAL ADMIN general admin"`
}

func (r *Router) signup(c *gin.Context) {
	var req signupRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := r.deps.Auth.Signup(c.Request.Context(), auth.SignupInput{
		Username:     req.Username,
		Email:        req.Email,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
		RemoteIP:     c.ClientIP(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (r *Router) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := r.deps.Auth.Login(c.Request.Context(), auth.LoginInput{
		Username:     req.Username,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
		RemoteIP:     c.ClientIP(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (r *Router) verifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		respondError(c, apperr.ValidationField("token", "token is required"))
		return
	}
	msg, err := r.deps.Auth.VerifyEmail(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (r *Router) resendVerification(c *gin.Context) {
	var req resendRequest
	if !bindJSON(c, &req) {
		return
	}
	msg, err := r.deps.Auth.ResendVerification(c.Request.Context(), req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (r *Router) setRole(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req roleRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := r.deps.Auth.SetRole(c.Request.Context(), auth.CurrentUser(c), id, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

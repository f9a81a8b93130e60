package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"authgate/internal/domain"
	"authgate/internal/service"
)

const profilePictureField = "profilePicture"

type signupRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	// Role is accepted for compatibility and ignored; signups are always plain users.
	Role string `json:"role" binding:"omitempty,oneof=user admin"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type updateMeRequest struct {
	Username *string `json:"username" binding:"omitempty,min=3"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Password *string `json:"password" binding:"omitempty,min=6"`
	Role     *string `json:"role" binding:"omitempty,oneof=user admin"`
}

func (h *Handler) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	user, token, err := h.users.Signup(c.Request.Context(), service.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.record(c, user, domain.ActivitySignup, nil)
	c.JSON(http.StatusCreated, AuthResponse{User: userToResponse(*user), SessionToken: token})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	user, token, err := h.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.entry(c).WithError(err).Debug("login failed")
		h.writeError(c, service.ErrInvalidCredentials)
		return
	}

	h.record(c, user, domain.ActivityLogin, nil)
	c.JSON(http.StatusOK, AuthResponse{User: userToResponse(*user), SessionToken: token})
}

func (h *Handler) logout(c *gin.Context) {
	user, _ := currentUser(c)
	if err := h.users.Logout(c.Request.Context(), sessionToken(c)); err != nil {
		h.writeError(c, err)
		return
	}

	h.record(c, user, domain.ActivityLogout, nil)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) me(c *gin.Context) {
	caller, _ := currentUser(c)
	user, err := h.users.Me(c.Request.Context(), caller)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userToResponse(*user))
}

func (h *Handler) updateMe(c *gin.Context) {
	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	caller, _ := currentUser(c)
	// req.Role is validated but dropped: a user never changes their own role here.
	user, err := h.users.UpdateProfile(c.Request.Context(), caller, domain.UserUpdate{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	var changed []string
	if req.Username != nil {
		changed = append(changed, "username")
	}
	if req.Email != nil {
		changed = append(changed, "email")
	}
	if req.Password != nil {
		changed = append(changed, "password")
	}
	if len(changed) > 0 {
		h.record(c, user, domain.ActivityProfileUpdate, map[string]any{"fields": changed})
	}
	c.JSON(http.StatusOK, userToResponse(*user))
}

func (h *Handler) deleteMe(c *gin.Context) {
	caller, _ := currentUser(c)
	if err := h.users.DeleteAccount(c.Request.Context(), caller); err != nil {
		h.writeError(c, err)
		return
	}

	h.record(c, caller, domain.ActivityAccountDelete, nil)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) resetPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	if err := h.users.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.writeError(c, err)
		return
	}

	h.record(c, &domain.User{Email: req.Email}, domain.ActivityPasswordResetRequest, map[string]any{"email": req.Email})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) resendVerification(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	if err := h.users.ResendVerification(c.Request.Context(), req.Email); err != nil {
		h.writeError(c, err)
		return
	}

	h.record(c, &domain.User{Email: req.Email}, domain.ActivityVerificationEmailRequest, map[string]any{"email": req.Email})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) uploadProfilePicture(c *gin.Context) {
	// leave room for multipart framing on top of the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)

	header, err := c.FormFile(profilePictureField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(c, &service.ValidationError{Message: "File size exceeds 5MB limit"})
			return
		}
		h.writeError(c, &service.ValidationError{Message: "No file uploaded"})
		return
	}

	file, err := header.Open()
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer file.Close()

	caller, _ := currentUser(c)
	user, err := h.users.UploadProfilePicture(c.Request.Context(), caller, service.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     file,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.record(c, user, domain.ActivityProfilePictureUpload, map[string]any{"size": header.Size})
	c.JSON(http.StatusOK, userToResponse(*user))
}

func (h *Handler) deleteProfilePicture(c *gin.Context) {
	caller, _ := currentUser(c)
	user, err := h.users.RemoveProfilePicture(c.Request.Context(), caller)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.record(c, user, domain.ActivityProfilePictureDelete, nil)
	c.JSON(http.StatusOK, userToResponse(*user))
}

// record hands an entry to the activity recorder. It never fails the request.
func (h *Handler) record(c *gin.Context, user *domain.User, kind domain.ActivityType, metadata map[string]any) {
	if h.activity == nil || user == nil {
		return
	}
	h.activity.Record(domain.ActivityLog{
		UserID:       user.ID,
		Username:     user.Username,
		ActivityType: kind,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
		Metadata:     metadata,
	})
}

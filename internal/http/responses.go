package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"authgate/internal/activity"
	"authgate/internal/domain"
	"authgate/internal/parse"
	"authgate/internal/service"
)

// isoMillis matches the timestamp format the backend and existing clients use.
const isoMillis = "2006-01-02T15:04:05.000Z"

type ProfilePictureResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type UserResponse struct {
	ObjectID       string                  `json:"objectId"`
	Username       string                  `json:"username"`
	Email          string                  `json:"email"`
	Role           domain.Role             `json:"role"`
	EmailVerified  bool                    `json:"emailVerified"`
	ProfilePicture *ProfilePictureResponse `json:"profilePicture,omitempty"`
	CreatedAt      string                  `json:"createdAt"`
	UpdatedAt      string                  `json:"updatedAt"`
}

type AuthResponse struct {
	User         UserResponse `json:"user"`
	SessionToken string       `json:"sessionToken"`
}

type UsersListResponse struct {
	Results []UserResponse `json:"results"`
}

type ActivityResponse struct {
	ObjectID     string         `json:"objectId"`
	UserID       string         `json:"userId"`
	Username     string         `json:"username"`
	ActivityType string         `json:"activityType"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    string         `json:"createdAt"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

func userToResponse(user domain.User) UserResponse {
	role := user.Role
	if !role.Valid() {
		role = domain.RoleUser
	}
	resp := UserResponse{
		ObjectID:      user.ID,
		Username:      user.Username,
		Email:         user.Email,
		Role:          role,
		EmailVerified: user.EmailVerified,
		CreatedAt:     formatTime(user.CreatedAt),
		UpdatedAt:     formatTime(user.UpdatedAt),
	}
	if user.ProfilePicture != nil {
		resp.ProfilePicture = &ProfilePictureResponse{
			Name: user.ProfilePicture.Name,
			URL:  user.ProfilePicture.URL,
		}
	}
	return resp
}

func activityToResponse(entry domain.ActivityLog) ActivityResponse {
	return ActivityResponse{
		ObjectID:     entry.ID,
		UserID:       entry.UserID,
		Username:     entry.Username,
		ActivityType: string(entry.ActivityType),
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		Metadata:     entry.Metadata,
		CreatedAt:    formatTime(entry.CreatedAt),
	}
}

// writeError maps service and backend failures onto the public error contract.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		verr *service.ValidationError
		perr *parse.Error
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
	case errors.Is(err, service.ErrInvalidSession), parse.IsInvalidSession(err):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden: Admin access required"})
	case errors.Is(err, service.ErrCannotDeleteSelf):
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot delete your own account"})
	case errors.Is(err, service.ErrCannotChangeOwnRole):
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot change your own role"})
	case errors.Is(err, activity.ErrListingUnsupported):
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Activity log is not readable with the configured sink"})
	case errors.As(err, &perr):
		c.JSON(http.StatusBadRequest, gin.H{"error": perr.Message})
	default:
		h.entry(c).WithError(err).Warn("request failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request failed"})
	}
}

// writeBindError reports the first validation failure of a request body.
func writeBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": bindErrorMessage(err)})
}

func bindErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fieldErrorMessage(verrs[0])
	}
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, io.EOF):
		return "Request body is required"
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			return fmt.Sprintf("%s has an invalid type", typeErr.Field)
		}
		return "Invalid request body"
	case errors.As(err, &syntaxErr):
		return "Invalid JSON body"
	}
	return "Invalid request body"
}

func fieldErrorMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "email":
		return "Invalid email address"
	case "oneof":
		options := strings.Fields(fe.Param())
		for i := range options {
			options[i] = "'" + options[i] + "'"
		}
		return fmt.Sprintf("%s must be either %s", name, strings.Join(options, " or "))
	}
	return name + " is invalid"
}

package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"authgate/internal/domain"
	"authgate/internal/parse"
	"authgate/internal/storage"
)

// DefaultMaxUploadBytes caps profile picture uploads at 5 MiB.
const DefaultMaxUploadBytes int64 = 5 * 1024 * 1024

const (
	msgNoFile          = "No file uploaded"
	msgInvalidFileType = "Only image files (jpeg, jpg, png, gif) are allowed"
	msgFileTooLarge    = "File size exceeds 5MB limit"
	msgInvalidRole     = "Role must be either 'user' or 'admin'"
	msgUsernameShort   = "Username must be at least 3 characters"
)

const minUsernameLength = 3

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/gif":  {},
}

// Backend is the subset of the Parse client the user service drives.
type Backend interface {
	SignUp(ctx context.Context, username, email, password string, role domain.Role) (*domain.User, string, error)
	LogIn(ctx context.Context, username, password string) (*domain.User, string, error)
	LogOut(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	UpdateUser(ctx context.Context, id string, changes parse.UserChanges) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]domain.User, error)
	RequestPasswordReset(ctx context.Context, email string) error
	RequestVerificationEmail(ctx context.Context, email string) error
}

// SignupInput is the payload accepted for new accounts. There is deliberately no role field.
type SignupInput struct {
	Username string
	Email    string
	Password string
}

// Upload describes a profile picture submitted by a user.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// UserService describes user lifecycle operations.
type UserService interface {
	Signup(ctx context.Context, in SignupInput) (*domain.User, string, error)
	Login(ctx context.Context, username, password string) (*domain.User, string, error)
	Logout(ctx context.Context, token string) error
	ResolveSession(ctx context.Context, token string) (*domain.User, error)
	RequireAdmin(ctx context.Context, caller *domain.User) (*domain.User, error)
	Me(ctx context.Context, caller *domain.User) (*domain.User, error)
	UpdateProfile(ctx context.Context, caller *domain.User, update domain.UserUpdate) (*domain.User, error)
	DeleteAccount(ctx context.Context, caller *domain.User) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResendVerification(ctx context.Context, email string) error
	UploadProfilePicture(ctx context.Context, caller *domain.User, up Upload) (*domain.User, error)
	RemoveProfilePicture(ctx context.Context, caller *domain.User) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	DeleteUser(ctx context.Context, caller *domain.User, targetID string) error
	UpdateRole(ctx context.Context, caller *domain.User, targetID string, role domain.Role) (*domain.User, error)
}

type Options struct {
	MaxUploadBytes int64
	Logger         *logrus.Logger
}

type userService struct {
	backend   Backend
	storage   storage.Service
	maxUpload int64
	logger    *logrus.Logger
}

func NewUserService(backend Backend, store storage.Service, opts Options) UserService {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &userService{
		backend:   backend,
		storage:   store,
		maxUpload: opts.MaxUploadBytes,
		logger:    opts.Logger,
	}
}

func (s *userService) Signup(ctx context.Context, in SignupInput) (*domain.User, string, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if err := checkUsername(username); err != nil {
		return nil, "", err
	}

	// every self-service account starts as a plain user; promotion goes through UpdateRole
	user, token, err := s.backend.SignUp(ctx, username, email, in.Password, domain.RoleUser)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *userService) Login(ctx context.Context, username, password string) (*domain.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}

	user, token, err := s.backend.LogIn(ctx, username, password)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return user, token, nil
}

func (s *userService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return ErrUnauthorized
	}
	return s.backend.LogOut(ctx, token)
}

func (s *userService) ResolveSession(ctx context.Context, token string) (*domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.backend.CurrentUser(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if user == nil || user.ID == "" {
		return nil, ErrInvalidSession
	}
	return user, nil
}

// RequireAdmin re-reads the caller so a role revoked since login takes effect immediately.
func (s *userService) RequireAdmin(ctx context.Context, caller *domain.User) (*domain.User, error) {
	if caller == nil || caller.ID == "" {
		return nil, ErrUnauthorized
	}
	fresh, err := s.backend.GetUser(ctx, caller.ID)
	if err != nil {
		// the account behind a still-valid token was deleted
		if parse.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !fresh.IsAdmin() {
		return nil, ErrForbidden
	}
	return fresh, nil
}

func (s *userService) Me(ctx context.Context, caller *domain.User) (*domain.User, error) {
	if caller == nil || caller.ID == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.backend.GetUser(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return user, nil
}

// UpdateProfile writes the caller's own username, email or password. Roles are never touched here.
func (s *userService) UpdateProfile(ctx context.Context, caller *domain.User, update domain.UserUpdate) (*domain.User, error) {
	if caller == nil || caller.ID == "" {
		return nil, ErrUnauthorized
	}

	if update.Empty() {
		return s.backend.GetUser(ctx, caller.ID)
	}
	changes := parse.UserChanges{
		Username: trimmed(update.Username),
		Email:    trimmed(update.Email),
		Password: update.Password,
	}
	if changes.Username != nil {
		if err := checkUsername(*changes.Username); err != nil {
			return nil, err
		}
	}
	return s.backend.UpdateUser(ctx, caller.ID, changes)
}

func (s *userService) DeleteAccount(ctx context.Context, caller *domain.User) error {
	if caller == nil || caller.ID == "" {
		return ErrUnauthorized
	}
	return s.backend.DeleteUser(ctx, caller.ID)
}

func (s *userService) RequestPasswordReset(ctx context.Context, email string) error {
	return s.backend.RequestPasswordReset(ctx, strings.TrimSpace(email))
}

func (s *userService) ResendVerification(ctx context.Context, email string) error {
	return s.backend.RequestVerificationEmail(ctx, strings.TrimSpace(email))
}

// checkUpload validates what the client declared about a file before any byte is read.
func (s *userService) checkUpload(up Upload) error {
	if up.Content == nil {
		return invalid(msgNoFile)
	}
	if up.Size > s.maxUpload {
		return invalid(msgFileTooLarge)
	}
	if !isAllowedImageType(up.ContentType) {
		return invalid(msgInvalidFileType)
	}
	return nil
}

func (s *userService) UploadProfilePicture(ctx context.Context, caller *domain.User, up Upload) (*domain.User, error) {
	if caller == nil || caller.ID == "" {
		return nil, ErrUnauthorized
	}
	if err := s.checkUpload(up); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(up.Content, s.maxUpload+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxUpload {
		return nil, invalid(msgFileTooLarge)
	}
	if len(data) == 0 {
		return nil, invalid(msgNoFile)
	}
	detected := mimetype.Detect(data)
	if !isAllowedImageType(detected.String()) {
		return nil, invalid(msgInvalidFileType)
	}

	current, err := s.backend.GetUser(ctx, caller.ID)
	if err != nil {
		return nil, err
	}

	pic, err := s.storage.Put(ctx, up.Filename, detected.String(), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	user, err := s.backend.UpdateUser(ctx, caller.ID, parse.UserChanges{ProfilePicture: pic})
	if err != nil {
		s.discardPicture(ctx, *pic)
		return nil, err
	}
	if current.ProfilePicture != nil && current.ProfilePicture.Name != pic.Name {
		s.discardPicture(ctx, *current.ProfilePicture)
	}
	return user, nil
}

func (s *userService) RemoveProfilePicture(ctx context.Context, caller *domain.User) (*domain.User, error) {
	if caller == nil || caller.ID == "" {
		return nil, ErrUnauthorized
	}
	current, err := s.backend.GetUser(ctx, caller.ID)
	if err != nil {
		return nil, err
	}

	user, err := s.backend.UpdateUser(ctx, caller.ID, parse.UserChanges{ClearProfilePicture: true})
	if err != nil {
		return nil, err
	}
	if current.ProfilePicture != nil {
		s.discardPicture(ctx, *current.ProfilePicture)
	}
	return user, nil
}

// discardPicture removes a stored object that is no longer referenced. Failures only leave an orphan behind.
func (s *userService) discardPicture(ctx context.Context, pic domain.ProfilePicture) {
	if err := s.storage.Delete(context.WithoutCancel(ctx), pic); err != nil {
		s.logger.WithError(err).WithField("file", pic.Name).Warn("failed to delete profile picture")
	}
}

func (s *userService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.backend.ListUsers(ctx)
}

func (s *userService) DeleteUser(ctx context.Context, caller *domain.User, targetID string) error {
	if caller == nil || caller.ID == "" {
		return ErrUnauthorized
	}
	targetID = strings.TrimSpace(targetID)
	if targetID == caller.ID {
		return ErrCannotDeleteSelf
	}
	if targetID == "" {
		return invalid("User id is required")
	}
	return s.backend.DeleteUser(ctx, targetID)
}

func (s *userService) UpdateRole(ctx context.Context, caller *domain.User, targetID string, role domain.Role) (*domain.User, error) {
	if caller == nil || caller.ID == "" {
		return nil, ErrUnauthorized
	}
	targetID = strings.TrimSpace(targetID)
	if targetID == caller.ID {
		return nil, ErrCannotChangeOwnRole
	}
	if targetID == "" {
		return nil, invalid("User id is required")
	}
	if !role.Valid() {
		return nil, invalid(msgInvalidRole)
	}
	return s.backend.UpdateUser(ctx, targetID, parse.UserChanges{Role: &role})
}

func isAllowedImageType(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	_, ok := allowedImageTypes[mediaType]
	return ok
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

// checkUsername applies the length rule to the value that will actually be stored.
func checkUsername(username string) error {
	if len([]rune(username)) < minUsernameLength {
		return invalid(msgUsernameShort)
	}
	return nil
}

package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/covecrm/covecrm/internal/models"
	"github.com/covecrm/covecrm/pkg/crypto"
	apperrors "github.com/covecrm/covecrm/pkg/errors"
)

// UserInput carries the writable user fields.
type UserInput struct {
	Name     string
	Email    string
	Password string
	RoleIDs  []string
	IsActive *bool
}

// UserService manages CRM accounts and their roles.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

// Create registers a new account with hashed credentials and role bindings.
func (s *UserService) Create(ctx context.Context, input UserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	email := normaliseEmail(input.Email)
	if name == "" || email == "" {
		return nil, apperrors.NewValidation("name and email are required")
	}
	if len(input.Password) < 8 {
		return nil, apperrors.NewValidation("password must be at least 8 characters")
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	roles, err := s.loadRoles(ctx, input.RoleIDs)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:     name,
		Email:    email,
		Password: hash,
		IsActive: true,
		Roles:    roles,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewBadRequest("an account with this email already exists")
		}
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	return user, nil
}

// Get loads an account with its roles.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Preload("Roles").Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return &user, nil
}

// GetByEmail loads an account by its email address.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Preload("Roles").Take(&user, "email = ?", normaliseEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return &user, nil
}

// List returns every account ordered by name.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	ctx = ensureContext(ctx)

	var users []models.User
	if err := s.db.WithContext(ctx).Preload("Roles").Order("name ASC").Find(&users).Error; err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return users, nil
}

// Update edits an account. Empty fields are left unchanged.
func (s *UserService) Update(ctx context.Context, id string, input UserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if name := strings.TrimSpace(input.Name); name != "" {
		updates["name"] = name
	}
	if email := normaliseEmail(input.Email); email != "" {
		updates["email"] = email
	}
	if input.Password != "" {
		if len(input.Password) < 8 {
			return nil, apperrors.NewValidation("password must be at least 8 characters")
		}
		hash, err := crypto.HashPassword(input.Password)
		if err != nil {
			return nil, apperrors.ErrInternalServer.WithInternal(err)
		}
		updates["password"] = hash
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			if isUniqueConstraintError(err) {
				return nil, apperrors.NewBadRequest("an account with this email already exists")
			}
			return nil, apperrors.ErrInternalServer.WithInternal(err)
		}
	}

	if input.RoleIDs != nil {
		roles, err := s.loadRoles(ctx, input.RoleIDs)
		if err != nil {
			return nil, err
		}
		if err := s.db.WithContext(ctx).Model(user).Association("Roles").Replace(roles); err != nil {
			return nil, apperrors.ErrInternalServer.WithInternal(err)
		}
	}

	return s.Get(ctx, id)
}

// FirstAdminEmail returns the address of the longest-standing administrator.
// The daily report is delivered there.
func (s *UserService) FirstAdminEmail(ctx context.Context) (string, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.user_id = users.id").
		Where("user_roles.role_id = ?", models.AdminRoleID).
		Where("users.is_active = ?", true).
		Order("users.created_at ASC").
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperrors.ErrNotFound
	}
	if err != nil {
		return "", apperrors.ErrInternalServer.WithInternal(err)
	}
	return user.Email, nil
}

func (s *UserService) loadRoles(ctx context.Context, roleIDs []string) ([]models.Role, error) {
	ids := normaliseIDs(roleIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	var roles []models.Role
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&roles).Error; err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	if len(roles) != len(ids) {
		return nil, apperrors.NewValidation("one or more roles do not exist")
	}
	return roles, nil
}

package app

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"homeai/internal/model"
	"homeai/internal/pkg/jwtutil"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmailExists       = errors.New("email already registered")
	ErrInvalidCredential = errors.New("incorrect email or password")
	ErrUserNotFound      = errors.New("user not found")
)

var (
	nameRe  = regexp.MustCompile(`^[a-zA-Z]+$`)
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// UserStore is the persistence surface the auth service needs.
type UserStore interface {
	Create(user *model.User) error
	GetByEmail(email string) (*model.User, error)
	GetByID(id uuid.UUID) (*model.User, error)
	Update(user *model.User) error
}

type AuthService struct {
	users         UserStore
	jwtSecret     string
	jwtAlgorithm  string
	jwtExpiration time.Duration
}

type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

type LoginInput struct {
	Email    string
	Password string
}

type ProfileInput struct {
	FirstName string
	LastName  string
	Email     string
}

type AuthResult struct {
	Token string
	User  *model.User
}

func NewAuthService(users UserStore, jwtSecret, jwtAlgorithm string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		users:         users,
		jwtSecret:     jwtSecret,
		jwtAlgorithm:  jwtAlgorithm,
		jwtExpiration: jwtExpiration,
	}
}

func (s *AuthService) Register(input RegisterInput) (*AuthResult, error) {
	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	email := strings.TrimSpace(strings.ToLower(input.Email))

	if err := validateName(firstName); err != nil {
		return nil, err
	}
	if err := validateName(lastName); err != nil {
		return nil, err
	}
	if !emailRe.MatchString(email) {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}

	user := &model.User{
		ID:           uuid.New(),
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		Enabled:      true,
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.users.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredential
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) GetUserByID(id uuid.UUID) (*model.User, error) {
	return s.users.GetByID(id)
}

// UpdateProfile updates names and email for the target user. The email stays
// unique across users.
func (s *AuthService) UpdateProfile(targetID uuid.UUID, input ProfileInput) (*model.User, error) {
	user, err := s.users.GetByID(targetID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	email := strings.TrimSpace(strings.ToLower(input.Email))

	if err := validateName(firstName); err != nil {
		return nil, err
	}
	if err := validateName(lastName); err != nil {
		return nil, err
	}
	if !emailRe.MatchString(email) {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}

	if email != user.Email {
		existing, err := s.users.GetByEmail(email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrEmailExists
		}
	}

	user.FirstName = firstName
	user.LastName = lastName
	user.Email = email
	if err := s.users.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword sets a new password for the target user. When requireOld is
// set the current password must verify first; admins resetting another
// account skip that check.
func (s *AuthService) ChangePassword(targetID uuid.UUID, oldPassword, newPassword string, requireOld bool) error {
	user, err := s.users.GetByID(targetID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if requireOld {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
			return ErrInvalidCredential
		}
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password failed: %w", err)
	}
	user.PasswordHash = string(hash)
	return s.users.Update(user)
}

func (s *AuthService) issueToken(user *model.User) (string, error) {
	return jwtutil.GenerateToken(s.jwtSecret, s.jwtAlgorithm, s.jwtExpiration, user.ID, user.Role)
}

func validateName(name string) error {
	if len(name) < 1 || len(name) > 50 || !nameRe.MatchString(name) {
		return fmt.Errorf("%w: names must be 1-50 alphabetic characters", ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 || len(password) > 50 {
		return fmt.Errorf("%w: password must be 8-50 characters", ErrInvalidInput)
	}
	var hasDigit, hasUpper, hasSpecial bool
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case strings.ContainsRune("!@#$%^&*()-_=+[]{}|;:,.<>?/", r):
			hasSpecial = true
		}
	}
	if !hasDigit {
		return fmt.Errorf("%w: password must contain at least one number", ErrInvalidInput)
	}
	if !hasUpper {
		return fmt.Errorf("%w: password must contain at least one uppercase letter", ErrInvalidInput)
	}
	if !hasSpecial {
		return fmt.Errorf("%w: password must contain at least one special character", ErrInvalidInput)
	}
	return nil
}

// Package auth implements account registration, password and Google login, and session tokens.
//
// Passwords are stored as bcrypt hashes. Sessions are stateless HS256 JWTs carrying the user's id and username.
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmonymaker/internal/models"
	"github.com/desertthunder/harmonymaker/internal/services"
	"github.com/desertthunder/harmonymaker/internal/shared"
)

const minPasswordLength = 6

var usernameSanitizer = regexp.MustCompile(`[^a-z0-9_]+`)

// UserStore is the persistence needed by [Service]. Implemented by [repositories.UserRepository].
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByGoogleSubject(ctx context.Context, sub string) (*models.User, error)
}

// Session is the result of a successful login.
type Session struct {
	Token string
	User  *models.User
}

// Service handles account lifecycle and login.
type Service struct {
	users  UserStore
	tokens *TokenIssuer
	logger *log.Logger
}

// NewService creates an auth [Service].
func NewService(users UserStore, tokens *TokenIssuer, logger *log.Logger) *Service {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &Service{users: users, tokens: tokens, logger: logger}
}

// Tokens returns the issuer used to sign sessions.
func (s *Service) Tokens() *TokenIssuer { return s.tokens }

// Register creates a password account.
//
// Missing fields return [shared.ErrMissingArgument]; a taken username or email returns [shared.ErrConflict].
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", shared.ErrMissingArgument)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", shared.ErrInvalidArgument, minPasswordLength)
	}

	if _, err := s.users.GetByEmail(ctx, strings.ToLower(email)); err == nil {
		return nil, fmt.Errorf("email %s: %w", email, shared.ErrConflict)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := models.NewUser(0, username, email)
	user.SetPasswordHash(hash)
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("registered user", "id", user.ID(), "username", user.Username())
	return user, nil
}

// Login verifies a username/password pair and issues a token.
//
// Unknown users and wrong passwords both return [shared.ErrInvalidCredentials].
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", shared.ErrMissingArgument)
	}

	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("%w: user not found", shared.ErrInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}

	if !CheckPassword(user.PasswordHash(), password) {
		return nil, fmt.Errorf("%w: invalid password", shared.ErrInvalidCredentials)
	}

	return s.session(user)
}

// LoginWithGoogle finds or creates the account for a Google profile and issues a token.
//
// Accounts are matched by Google subject first, then by email (linking an existing password account).
func (s *Service) LoginWithGoogle(ctx context.Context, profile *services.GoogleProfile) (*Session, error) {
	user, err := s.users.GetByGoogleSubject(ctx, profile.Subject)
	if err == nil {
		return s.session(user)
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	user, err = s.users.GetByEmail(ctx, strings.ToLower(profile.Email))
	switch {
	case err == nil:
		user.SetGoogleSubject(profile.Subject)
		if err := s.users.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to link google account: %w", err)
		}
		s.logger.Info("linked google account", "id", user.ID())
	case errors.Is(err, shared.ErrNotFound):
		user, err = s.createGoogleUser(ctx, profile)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return s.session(user)
}

// createGoogleUser derives a username from the profile, suffixing it until it is free.
func (s *Service) createGoogleUser(ctx context.Context, profile *services.GoogleProfile) (*models.User, error) {
	base := GoogleUsername(profile)

	for i := 0; i < 5; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s_%s", base, shared.GenerateID()[:6])
		}

		user := models.NewUser(0, name, profile.Email)
		user.SetGoogleSubject(profile.Subject)

		err := s.users.Create(ctx, user)
		if err == nil {
			s.logger.Info("registered google user", "id", user.ID(), "username", user.Username())
			return user, nil
		}
		if !errors.Is(err, shared.ErrConflict) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("could not allocate a username for %s: %w", profile.Email, shared.ErrConflict)
}

// GoogleUsername derives a lowercase username from the profile name, or the email's local part.
func GoogleUsername(profile *services.GoogleProfile) string {
	source := profile.Name
	if strings.TrimSpace(source) == "" {
		source, _, _ = strings.Cut(profile.Email, "@")
	}

	name := usernameSanitizer.ReplaceAllString(strings.ToLower(source), "_")
	name = strings.Trim(name, "_")
	if len(name) > 48 {
		name = name[:48]
	}
	if name == "" {
		name = "user"
	}
	return name
}

// Me returns the active user behind an identity.
func (s *Service) Me(ctx context.Context, id *Identity) (*models.User, error) {
	user, err := s.users.Get(ctx, id.ID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("%w: account no longer exists", shared.ErrNotAuthenticated)
	}
	return user, err
}

func (s *Service) session(user *models.User) (*Session, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: user}, nil
}

package service

import (
	"context"
	"time"

	"ai-chatflow-be/internal/dto"
	"ai-chatflow-be/internal/entity"
	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/internal/pkg/mailer"
	"ai-chatflow-be/internal/repository/specification"
	"ai-chatflow-be/internal/repository/unitofwork"
	"ai-chatflow-be/pkg/chat"
	"ai-chatflow-be/pkg/chat/session"
	"ai-chatflow-be/pkg/events"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	EventUserRegistered = "USER_REGISTERED"
	EventUserLogin      = "USER_LOGIN"
	EventUserLogout     = "USER_LOGOUT"
)

type IAuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.LoginResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest, ipAddress, userAgent string) (*dto.LoginResponse, error)
	Logout(ctx context.Context, userId uuid.UUID) error
	Me(ctx context.Context, userId uuid.UUID) (*dto.UserDTO, error)
}

// TokenConfig signs access tokens.
type TokenConfig struct {
	Secret string
	TTL    time.Duration
}

type authService struct {
	uowFactory     unitofwork.RepositoryFactory
	sessions       *session.Manager
	emailService   mailer.IEmailService
	eventPublisher events.Publisher
	tokens         TokenConfig
	logger         logger.ILogger
}

func NewAuthService(
	uowFactory unitofwork.RepositoryFactory,
	sessions *session.Manager,
	emailService mailer.IEmailService,
	eventPublisher events.Publisher,
	tokens TokenConfig,
	logger logger.ILogger,
) IAuthService {
	return &authService{
		uowFactory:     uowFactory,
		sessions:       sessions,
		emailService:   emailService,
		eventPublisher: eventPublisher,
		tokens:         tokens,
		logger:         logger,
	}
}

func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.LoginResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	existing, err := uow.UserRepository().FindOne(ctx, specification.ByEmail{Email: req.Email})
	if err != nil {
		return nil, &chat.PersistenceError{Op: "find user", Err: err}
	}
	if existing != nil {
		return nil, chat.NewAuthError("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, &chat.AuthError{Reason: "could not secure password", Err: err}
	}
	hashStr := string(hash)

	now := time.Now()
	user := &entity.User{
		Id:           uuid.New(),
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: &hashStr,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uow.UserRepository().Create(ctx, user); err != nil {
		// Another registration can take the email between the lookup and the insert.
		if taken, findErr := uow.UserRepository().FindOne(ctx, specification.ByEmail{Email: req.Email}); findErr == nil && taken != nil {
			return nil, chat.NewAuthError("email already registered")
		}
		return nil, &chat.PersistenceError{Op: "create user", Err: err}
	}

	resp, err := s.signIn(ctx, user)
	if err != nil {
		return nil, err
	}

	go func() {
		if err := s.emailService.SendWelcome(user.Email, user.FullName); err != nil {
			s.logger.Warn("AUTH", "Welcome mail not sent", map[string]interface{}{"user_id": user.Id.String(), "error": err.Error()})
		}
	}()

	s.publish(ctx, EventUserRegistered, map[string]interface{}{"user_id": user.Id.String(), "email": user.Email})
	return resp, nil
}

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest, ipAddress, userAgent string) (*dto.LoginResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	user, err := uow.UserRepository().FindOne(ctx, specification.ByEmail{Email: req.Email})
	if err != nil {
		return nil, &chat.PersistenceError{Op: "find user", Err: err}
	}
	if user == nil {
		return nil, chat.NewAuthError("invalid credentials")
	}
	if user.PasswordHash == nil {
		return nil, chat.NewAuthError("this account signs in with Google")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, chat.NewAuthError("invalid credentials")
	}

	resp, err := s.signIn(ctx, user)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, EventUserLogin, map[string]interface{}{
		"user_id": user.Id.String(),
		"ip":      ipAddress,
		"device":  userAgent,
	})
	return resp, nil
}

// Logout ends the server-side session. The token itself stays valid until it expires.
func (s *authService) Logout(ctx context.Context, userId uuid.UUID) error {
	s.sessions.SignOut(ctx, userId)
	s.publish(ctx, EventUserLogout, map[string]interface{}{"user_id": userId.String()})
	return nil
}

func (s *authService) Me(ctx context.Context, userId uuid.UUID) (*dto.UserDTO, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	user, err := uow.UserRepository().FindOne(ctx, specification.ByID{ID: userId})
	if err != nil {
		return nil, &chat.PersistenceError{Op: "find user", Err: err}
	}
	if user == nil {
		return nil, chat.NewAuthError("account no longer exists")
	}
	out := toUserDTO(user)
	return &out, nil
}

// signIn issues a token and binds the user's session, loading their conversations.
func (s *authService) signIn(ctx context.Context, user *entity.User) (*dto.LoginResponse, error) {
	token, err := signToken(s.tokens, user.Id)
	if err != nil {
		return nil, &chat.AuthError{Reason: "could not issue token", Err: err}
	}

	if _, err := s.sessions.SignIn(ctx, identityOf(user)); err != nil {
		return nil, err
	}

	return &dto.LoginResponse{AccessToken: token, User: toUserDTO(user)}, nil
}

func (s *authService) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events.New(eventType, data)); err != nil {
		s.logger.Warn("AUTH", "Failed to publish event", map[string]interface{}{"event": eventType, "error": err.Error()})
	}
}

func signToken(cfg TokenConfig, userId uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userId.String(),
		"exp":     time.Now().Add(cfg.TTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

func identityOf(user *entity.User) chat.Identity {
	identity := chat.Identity{Id: user.Id, DisplayName: user.FullName, Email: user.Email}
	if user.AvatarURL != nil {
		identity.PhotoURL = *user.AvatarURL
	}
	return identity
}

func toUserDTO(user *entity.User) dto.UserDTO {
	out := dto.UserDTO{Id: user.Id, Email: user.Email, FullName: user.FullName}
	if user.AvatarURL != nil {
		out.AvatarURL = *user.AvatarURL
	}
	return out
}

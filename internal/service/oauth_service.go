package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"ai-chatflow-be/internal/config"
	"ai-chatflow-be/internal/dto"
	"ai-chatflow-be/internal/entity"
	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/internal/repository/specification"
	"ai-chatflow-be/internal/repository/unitofwork"
	"ai-chatflow-be/pkg/chat"
	"ai-chatflow-be/pkg/chat/session"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	ProviderGoogle = "google"
	googleUserInfo = "https://www.googleapis.com/oauth2/v2/userinfo"
)

type IOAuthService interface {
	// GetLoginURL returns the consent URL and the state to check on callback.
	GetLoginURL(provider string) (url, state string, err error)
	HandleCallback(ctx context.Context, provider, code string) (*dto.LoginResponse, error)
}

type googleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

type oauthService struct {
	uowFactory  unitofwork.RepositoryFactory
	sessions    *session.Manager
	googleConf  *oauth2.Config
	userInfoURL string
	tokens      TokenConfig
	logger      logger.ILogger
}

func NewOAuthService(uowFactory unitofwork.RepositoryFactory, sessions *session.Manager, cfg config.OAuthConfig, tokens TokenConfig, logger logger.ILogger) IOAuthService {
	conf := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}

	return &oauthService{
		uowFactory:  uowFactory,
		sessions:    sessions,
		googleConf:  conf,
		userInfoURL: googleUserInfo,
		tokens:      tokens,
		logger:      logger,
	}
}

func (s *oauthService) GetLoginURL(provider string) (string, string, error) {
	if provider != ProviderGoogle {
		return "", "", chat.NewAuthError("unsupported provider")
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	state := base64.URLEncoding.EncodeToString(b)

	return s.googleConf.AuthCodeURL(state), state, nil
}

func (s *oauthService) HandleCallback(ctx context.Context, provider, code string) (*dto.LoginResponse, error) {
	if provider != ProviderGoogle {
		return nil, chat.NewAuthError("unsupported provider")
	}

	token, err := s.googleConf.Exchange(ctx, code)
	if err != nil {
		return nil, &chat.AuthError{Reason: "google sign-in failed", Err: err}
	}

	profile, err := s.fetchProfile(ctx, token)
	if err != nil {
		return nil, &chat.AuthError{Reason: "could not read google profile", Err: err}
	}
	if profile.Email == "" {
		return nil, chat.NewAuthError("google account has no email")
	}

	user, err := s.findOrCreate(ctx, profile)
	if err != nil {
		return nil, err
	}

	signed, err := signToken(s.tokens, user.Id)
	if err != nil {
		return nil, &chat.AuthError{Reason: "could not issue token", Err: err}
	}
	if _, err := s.sessions.SignIn(ctx, identityOf(user)); err != nil {
		return nil, err
	}

	s.logger.Info("OAUTH", "User signed in with Google", map[string]interface{}{"user_id": user.Id.String()})
	return &dto.LoginResponse{AccessToken: signed, User: toUserDTO(user)}, nil
}

func (s *oauthService) fetchProfile(ctx context.Context, token *oauth2.Token) (*googleUser, error) {
	client := s.googleConf.Client(ctx, token)
	resp, err := client.Get(s.userInfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var profile googleUser
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// findOrCreate links the Google identity to the account with the same email, creating one if needed.
func (s *oauthService) findOrCreate(ctx context.Context, profile *googleUser) (*entity.User, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, &chat.PersistenceError{Op: "begin", Err: err}
	}
	defer uow.Rollback()

	user, err := uow.UserRepository().FindOne(ctx, specification.ByEmail{Email: profile.Email})
	if err != nil {
		return nil, &chat.PersistenceError{Op: "find user", Err: err}
	}

	now := time.Now()
	if user == nil {
		user = &entity.User{
			Id:        uuid.New(),
			Email:     profile.Email,
			FullName:  profile.Name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if profile.Picture != "" {
			user.AvatarURL = &profile.Picture
		}
		if err := uow.UserRepository().Create(ctx, user); err != nil {
			return nil, &chat.PersistenceError{Op: "create user", Err: err}
		}
	} else if profile.Picture != "" && (user.AvatarURL == nil || *user.AvatarURL != profile.Picture) {
		user.AvatarURL = &profile.Picture
		user.UpdatedAt = now
		if err := uow.UserRepository().Update(ctx, user); err != nil {
			return nil, &chat.PersistenceError{Op: "update user", Err: err}
		}
	}

	err = uow.UserRepository().SaveUserProvider(ctx, &entity.UserProvider{
		Id:             uuid.New(),
		UserId:         user.Id,
		ProviderName:   ProviderGoogle,
		ProviderUserId: profile.ID,
		AvatarURL:      profile.Picture,
		CreatedAt:      now,
	})
	if err != nil {
		return nil, &chat.PersistenceError{Op: "save provider", Err: err}
	}

	if err := uow.Commit(); err != nil {
		return nil, &chat.PersistenceError{Op: "commit", Err: err}
	}
	return user, nil
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-chatflow-be/internal/dto"
	"ai-chatflow-be/internal/entity"
	"ai-chatflow-be/internal/model"
	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/internal/pkg/serverutils"
	"ai-chatflow-be/internal/repository/contract"
	"ai-chatflow-be/internal/repository/memory"
	"ai-chatflow-be/internal/repository/specification"
	"ai-chatflow-be/internal/repository/unitofwork"
	"ai-chatflow-be/pkg/chat"
	"ai-chatflow-be/pkg/chat/chattest"
	"ai-chatflow-be/pkg/chat/session"
	"ai-chatflow-be/pkg/chat/store"
	"ai-chatflow-be/pkg/database"
	"ai-chatflow-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMailer) SendWelcome(toEmail, fullName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, toEmail)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, event.EventType())
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

type authFixture struct {
	svc      IAuthService
	sessions *memory.SessionRepository
	mailer   *recordingMailer
	pub      *recordingPublisher
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	return newAuthFixtureWith(t, nil)
}

func newAuthFixtureWith(t *testing.T, wrap func(unitofwork.RepositoryFactory) unitofwork.RepositoryFactory) *authFixture {
	t.Helper()

	db, err := database.NewSQLiteDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.UserProvider{}))

	gw := chattest.NewGateway()
	repo := memory.NewSessionRepository(time.Hour)
	sessions := session.NewManager(repo, func(userId uuid.UUID) *store.Store { return store.New(userId, gw) }, logger.NewNopLogger())

	f := &authFixture{sessions: repo, mailer: &recordingMailer{}, pub: &recordingPublisher{}}
	factory := unitofwork.NewRepositoryFactory(db)
	if wrap != nil {
		factory = wrap(factory)
	}
	f.svc = NewAuthService(
		factory,
		sessions,
		f.mailer,
		f.pub,
		TokenConfig{Secret: "test-secret", TTL: time.Hour},
		logger.NewNopLogger(),
	)
	return f
}

func TestRegisterSignsInAndWelcomes(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Register(ctx, &dto.RegisterRequest{FullName: "Ada Lovelace", Email: "ada@example.com", Password: "analytical"})
	require.NoError(t, err)

	userId, err := serverutils.ParseUserToken("test-secret", resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.Id, userId)
	assert.Equal(t, "Ada Lovelace", resp.User.FullName)

	st, ok := f.sessions.Get(userId)
	require.True(t, ok)
	assert.Equal(t, userId, st.UserId())

	require.Eventually(t, func() bool { return f.mailer.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{EventUserRegistered}, f.pub.published())
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	req := &dto.RegisterRequest{FullName: "Ada Lovelace", Email: "ada@example.com", Password: "analytical"}

	_, err := f.svc.Register(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, req)
	var authErr *chat.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "email already registered", authErr.Reason)
}

// lateSignupFactory lets a competing registration insert the same email right
// after the service has looked it up and found nothing.
type lateSignupFactory struct {
	unitofwork.RepositoryFactory
	once sync.Once
}

func (f *lateSignupFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &lateSignupUnitOfWork{UnitOfWork: f.RepositoryFactory.NewUnitOfWork(ctx), factory: f}
}

type lateSignupUnitOfWork struct {
	unitofwork.UnitOfWork
	factory *lateSignupFactory
}

func (u *lateSignupUnitOfWork) UserRepository() contract.UserRepository {
	return &lateSignupUsers{UserRepository: u.UnitOfWork.UserRepository(), factory: u.factory}
}

type lateSignupUsers struct {
	contract.UserRepository
	factory *lateSignupFactory
}

func (r *lateSignupUsers) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.User, error) {
	found, err := r.UserRepository.FindOne(ctx, specs...)
	if err != nil || found != nil {
		return found, err
	}
	var competeErr error
	r.factory.once.Do(func() {
		email, ok := specs[0].(specification.ByEmail)
		if !ok {
			return
		}
		now := time.Now()
		competeErr = r.UserRepository.Create(ctx, &entity.User{
			Id:        uuid.New(),
			Email:     email.Email,
			FullName:  "Someone Else",
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	return nil, competeErr
}

func TestRegisterEmailTakenDuringSignup(t *testing.T) {
	f := newAuthFixtureWith(t, func(inner unitofwork.RepositoryFactory) unitofwork.RepositoryFactory {
		return &lateSignupFactory{RepositoryFactory: inner}
	})

	_, err := f.svc.Register(context.Background(), &dto.RegisterRequest{FullName: "Ada Lovelace", Email: "ada@example.com", Password: "analytical"})

	var authErr *chat.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "email already registered", authErr.Reason)
	assert.Empty(t, f.pub.published())
	assert.Zero(t, f.sessions.Count())
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	registered, err := f.svc.Register(ctx, &dto.RegisterRequest{FullName: "Ada Lovelace", Email: "ada@example.com", Password: "analytical"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, registered.User.Id))
	assert.Zero(t, f.sessions.Count())

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  string
	}{
		{"valid", "ada@example.com", "analytical", ""},
		{"wrong password", "ada@example.com", "difference", "invalid credentials"},
		{"unknown email", "bob@example.com", "analytical", "invalid credentials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.svc.Login(ctx, &dto.LoginRequest{Email: tt.email, Password: tt.password}, "127.0.0.1", "test")
			if tt.wantErr != "" {
				var authErr *chat.AuthError
				require.True(t, errors.As(err, &authErr))
				assert.Equal(t, tt.wantErr, authErr.Reason)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, registered.User.Id, resp.User.Id)
			assert.Equal(t, 1, f.sessions.Count())
		})
	}

	assert.Contains(t, f.pub.published(), EventUserLogin)
	assert.Contains(t, f.pub.published(), EventUserLogout)
}

func TestMe(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	registered, err := f.svc.Register(ctx, &dto.RegisterRequest{FullName: "Ada Lovelace", Email: "ada@example.com", Password: "analytical"})
	require.NoError(t, err)

	me, err := f.svc.Me(ctx, registered.User.Id)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", me.Email)

	_, err = f.svc.Me(ctx, uuid.New())
	var authErr *chat.AuthError
	assert.True(t, errors.As(err, &authErr))
}

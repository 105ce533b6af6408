package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/iliyamo/vkm-portal/internal/ai"
	"github.com/iliyamo/vkm-portal/internal/identity"
	"github.com/iliyamo/vkm-portal/internal/model"
	"github.com/iliyamo/vkm-portal/internal/queue"
	"github.com/iliyamo/vkm-portal/internal/repository"
	"github.com/iliyamo/vkm-portal/internal/utils"
)

type memUsers struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]*model.User
}

func newMemUsers() *memUsers {
	return &memUsers{nextID: 1, byID: map[uint64]*model.User{}}
}

func clone(u *model.User) *model.User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	c.Favorites = slices.Clone(u.Favorites)
	if c.Favorites == nil {
		c.Favorites = []uint64{}
	}
	c.Profile = model.Profile{
		Interests: slices.Clone(u.Profile.Interests),
		Values:    slices.Clone(u.Profile.Values),
		Goals:     slices.Clone(u.Profile.Goals),
	}
	return &c
}

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byID {
		if o.Email == u.Email {
			return repository.ErrDuplicateEmail
		}
		if o.Username == u.Username {
			return repository.ErrDuplicateUsername
		}
	}
	u.ID = m.nextID
	m.nextID++
	u.Roles = model.NormalizeRoles(u.Roles)
	if u.Favorites == nil {
		u.Favorites = []uint64{}
	}
	m.byID[u.ID] = clone(u)
	return nil
}

func (m *memUsers) find(match func(*model.User) bool) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if match(u) {
			return clone(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
	if id == 0 {
		return nil, repository.ErrInvalidID
	}
	return m.find(func(u *model.User) bool { return u.ID == id })
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Email == email })
}

func (m *memUsers) GetByUsername(_ context.Context, name string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Username == name })
}

func (m *memUsers) GetByOAuth(_ context.Context, provider, subject string) (*model.User, error) {
	return m.find(func(u *model.User) bool {
		return u.OAuth != nil && u.OAuth.Provider == provider && u.OAuth.SubjectID == subject
	})
}

func (m *memUsers) Update(_ context.Context, id uint64, p model.UserPatch) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.Roles != nil {
		u.Roles = model.NormalizeRoles(p.Roles)
	}
	if p.Profile.Interests != nil {
		u.Profile.Interests = *p.Profile.Interests
	}
	if p.Profile.Values != nil {
		u.Profile.Values = *p.Profile.Values
	}
	if p.Profile.Goals != nil {
		u.Profile.Goals = *p.Profile.Goals
	}
	return clone(u), nil
}

func (m *memUsers) Delete(_ context.Context, id uint64) error {
	if id == 0 {
		return repository.ErrInvalidID
	}
	m.mu.Lock()
	delete(m.byID, id)
	m.mu.Unlock()
	return nil
}

func (m *memUsers) List(_ context.Context) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.User
	for _, u := range m.byID {
		out = append(out, clone(u))
	}
	slices.SortFunc(out, func(a, b *model.User) int { return int(a.ID) - int(b.ID) })
	return out, nil
}

func (m *memUsers) ListByRole(ctx context.Context, role model.Role) ([]*model.User, error) {
	all, _ := m.List(ctx)
	var out []*model.User
	for _, u := range all {
		if u.HasRole(role) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memUsers) AddFavorite(_ context.Context, userID, moduleID uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	if !slices.Contains(u.Favorites, moduleID) {
		u.Favorites = append(u.Favorites, moduleID)
	}
	return slices.Clone(u.Favorites), nil
}

func (m *memUsers) RemoveFavorite(_ context.Context, userID, moduleID uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u.Favorites = slices.DeleteFunc(u.Favorites, func(id uint64) bool { return id == moduleID })
	return slices.Clone(u.Favorites), nil
}

func (m *memUsers) Favorites(_ context.Context, userID uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return slices.Clone(u.Favorites), nil
}

type memModules map[uint64]model.Module

func (m memModules) GetByID(_ context.Context, id uint64) (*model.Module, error) {
	mod, ok := m[id]
	if !ok {
		return nil, repository.ErrModuleNotFound
	}
	return &mod, nil
}

func (m memModules) Exists(_ context.Context, id uint64) (bool, error) {
	_, ok := m[id]
	return ok, nil
}

func (m memModules) GetByIDs(_ context.Context, ids []uint64) (map[uint64]model.Module, error) {
	out := map[uint64]model.Module{}
	for _, id := range ids {
		if mod, ok := m[id]; ok {
			out[id] = mod
		}
	}
	return out, nil
}

func (m memModules) List(_ context.Context, _ model.ModuleFilter, page, limit int) (model.ModulePage, error) {
	out := model.ModulePage{Modules: []model.Module{}, Total: len(m), Page: page, Limit: limit}
	for _, mod := range m {
		out.Modules = append(out.Modules, mod)
	}
	return out, nil
}

type stubRecommender struct {
	mu     sync.Mutex
	calls  []ai.Query
	result []model.ScoredModule
	err    error
}

func (r *stubRecommender) Recommend(_ context.Context, q ai.Query, _ int) ([]model.ScoredModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, q)
	return r.result, r.err
}

type stubVerifier struct {
	id  *identity.ExternalIdentity
	err error
}

func (v stubVerifier) Verify(context.Context, string) (*identity.ExternalIdentity, error) {
	return v.id, v.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	delay  time.Duration
	events []queue.ActivityEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.ActivityEvent) error {
	time.Sleep(p.delay)
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	svc    *AuthService
	users  *memUsers
	rec    *stubRecommender
	events *recordingPublisher
	tokens *utils.TokenIssuer
}

func newFixture(verifier ExternalVerifier) *fixture {
	f := &fixture{
		users:  newMemUsers(),
		rec:    &stubRecommender{},
		events: &recordingPublisher{},
		tokens: utils.NewTokenIssuer("secret", "vkm-api", "vkm-users", time.Hour),
	}
	f.svc = NewAuthService(Deps{
		Users: f.users,
		Modules: memModules{
			1: {ID: 1, Name: "Data Science", ModuleTags: "data,ai"},
			2: {ID: 2, Name: "UX Design", ModuleTags: "design"},
			3: {ID: 3, Name: "Cloud", ModuleTags: "ops,data"},
		},
		Tokens:      f.tokens,
		Verifier:    verifier,
		Recommender: f.rec,
		Events:      f.events,
		BcryptCost:  4,
		TopN:        5,
	})
	return f
}

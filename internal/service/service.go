// Package service holds the business logic of the portal: registration,
// login and federation, account updates, favorites and recommendations.
package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/vkm-portal/internal/ai"
	"github.com/iliyamo/vkm-portal/internal/identity"
	"github.com/iliyamo/vkm-portal/internal/model"
	"github.com/iliyamo/vkm-portal/internal/queue"
	"github.com/iliyamo/vkm-portal/internal/utils"
)

// UserStore is the credential store.  *repository.UserRepo implements it.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByOAuth(ctx context.Context, provider, subjectID string) (*model.User, error)
	Update(ctx context.Context, id uint64, p model.UserPatch) (*model.User, error)
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context) ([]*model.User, error)
	ListByRole(ctx context.Context, role model.Role) ([]*model.User, error)
	AddFavorite(ctx context.Context, userID, moduleID uint64) ([]uint64, error)
	RemoveFavorite(ctx context.Context, userID, moduleID uint64) ([]uint64, error)
	Favorites(ctx context.Context, userID uint64) ([]uint64, error)
}

// ModuleCatalog is the read side of the module catalog.
// *repository.ModuleRepo implements it.
type ModuleCatalog interface {
	GetByID(ctx context.Context, id uint64) (*model.Module, error)
	Exists(ctx context.Context, id uint64) (bool, error)
	GetByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Module, error)
	List(ctx context.Context, f model.ModuleFilter, page, limit int) (model.ModulePage, error)
}

// Recommender is the external recommendation model.
type Recommender interface {
	Recommend(ctx context.Context, q ai.Query, topN int) ([]model.ScoredModule, error)
}

// Trainer retrains the external recommendation model.  *ai.Client
// implements it.
type Trainer interface {
	Train(ctx context.Context, set model.TrainingSet) (string, error)
}

// ExternalVerifier validates third-party id tokens.
type ExternalVerifier interface {
	Verify(ctx context.Context, idToken string) (*identity.ExternalIdentity, error)
}

// TokenSigner issues session tokens.
type TokenSigner interface {
	Issue(u *model.User) (utils.AccessToken, error)
}

// EventPublisher delivers activity events.  Failures are logged only.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ActivityEvent) error
}

// Deps bundles the collaborators of AuthService.  Verifier, Recommender,
// Trainer and Events may be nil: Microsoft login is then refused,
// recommendations are always empty, retraining fails and no events are sent.
type Deps struct {
	Users       UserStore
	Modules     ModuleCatalog
	Tokens      TokenSigner
	Verifier    ExternalVerifier
	Recommender Recommender
	Trainer     Trainer
	Events      EventPublisher
	Logger      *zap.Logger
	BcryptCost  int
	TopN        int
}

// AuthService orchestrates the credential store, the favorites ledger, the
// token issuer and the external services.
type AuthService struct {
	users       UserStore
	modules     ModuleCatalog
	tokens      TokenSigner
	verifier    ExternalVerifier
	recommender Recommender
	trainer     Trainer
	events      EventPublisher
	log         *zap.Logger
	bcryptCost  int
	topN        int

	inflight sync.WaitGroup
}

func NewAuthService(d Deps) *AuthService {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.TopN < 1 {
		d.TopN = 5
	}
	return &AuthService{
		users:       d.Users,
		modules:     d.Modules,
		tokens:      d.Tokens,
		verifier:    d.Verifier,
		recommender: d.Recommender,
		trainer:     d.Trainer,
		events:      d.Events,
		log:         d.Logger,
		bcryptCost:  d.BcryptCost,
		topN:        d.TopN,
	}
}

// emit publishes ev in the background.  The request never waits for the
// broker; Wait does.
func (s *AuthService) emit(ev queue.ActivityEvent) {
	if s.events == nil {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.events.Publish(ctx, ev); err != nil {
			s.log.Warn("publish activity event", zap.String("type", ev.Type), zap.Uint64("user_id", ev.UserID), zap.Error(err))
		}
	}()
}

// Wait blocks until every event handed to the publisher has been delivered
// or has failed.
func (s *AuthService) Wait() {
	s.inflight.Wait()
}

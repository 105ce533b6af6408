package service

import (
	"context"
	"errors"

	"github.com/iliyamo/vkm-portal/internal/model"
	"github.com/iliyamo/vkm-portal/internal/queue"
	"github.com/iliyamo/vkm-portal/internal/repository"
)

func parseModuleID(raw string) (uint64, error) {
	id, err := repository.ParseID(raw)
	if err != nil {
		return 0, ErrInvalidModuleID
	}
	return id, nil
}

// AddFavorite adds a module to the user's favorites after confirming it
// exists in the catalog.  Adding a module twice is a no-op.
func (s *AuthService) AddFavorite(ctx context.Context, userID uint64, rawModuleID string) ([]uint64, error) {
	moduleID, err := parseModuleID(rawModuleID)
	if err != nil {
		return nil, err
	}
	ok, err := s.modules.Exists(ctx, moduleID)
	if err != nil {
		return nil, fromRepo("add favorite: module lookup", err)
	}
	if !ok {
		return nil, ErrModuleNotFound
	}
	favs, err := s.users.AddFavorite(ctx, userID, moduleID)
	if err != nil {
		return nil, fromRepo("add favorite", err)
	}
	s.emitFavorites(userID, moduleID, "added", favs)
	return favs, nil
}

// RemoveFavorite drops a module from the user's favorites.  Only the id
// format is checked: a module that has since left the catalog can still be
// removed.  Removing a module that is not a favorite is a no-op.
func (s *AuthService) RemoveFavorite(ctx context.Context, userID uint64, rawModuleID string) ([]uint64, error) {
	moduleID, err := parseModuleID(rawModuleID)
	if err != nil {
		return nil, err
	}
	favs, err := s.users.RemoveFavorite(ctx, userID, moduleID)
	if err != nil {
		return nil, fromRepo("remove favorite", err)
	}
	s.emitFavorites(userID, moduleID, "removed", favs)
	return favs, nil
}

func (s *AuthService) emitFavorites(userID, moduleID uint64, action string, favs []uint64) {
	ev := queue.NewActivityEvent(queue.EventFavoritesChanged, userID)
	ev.ModuleID = moduleID
	ev.Action = action
	ev.Favorites = favs
	s.emit(ev)
}

// GetFavorites returns the favorite module ids of a user.
func (s *AuthService) GetFavorites(ctx context.Context, userID uint64) ([]uint64, error) {
	favs, err := s.users.Favorites(ctx, userID)
	if err != nil {
		return nil, fromRepo("favorites", err)
	}
	return favs, nil
}

// GetFavoritesByRawID is GetFavorites for an id taken from a request path.
func (s *AuthService) GetFavoritesByRawID(ctx context.Context, rawUserID string) ([]uint64, error) {
	id, err := repository.ParseID(rawUserID)
	if err != nil {
		return nil, ErrInvalidUserID
	}
	return s.GetFavorites(ctx, id)
}

// FavoriteModules returns the user's favorites as catalog modules, skipping
// ids the catalog no longer knows.
func (s *AuthService) FavoriteModules(ctx context.Context, userID uint64) ([]model.Module, error) {
	favs, err := s.GetFavorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.resolveModules(ctx, favs)
}

// resolveModules loads ids from the catalog keeping their order.
func (s *AuthService) resolveModules(ctx context.Context, ids []uint64) ([]model.Module, error) {
	out := []model.Module{}
	if len(ids) == 0 {
		return out, nil
	}
	found, err := s.modules.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fromRepo("resolve modules", err)
	}
	for _, id := range ids {
		if m, ok := found[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// isNotFound reports whether err is a user lookup miss.
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrUserNotFound)
}

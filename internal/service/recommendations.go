package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/vkm-portal/internal/ai"
	"github.com/iliyamo/vkm-portal/internal/model"
)

// GetRecommendations asks the recommender for modules similar to the user's
// favorites.  A user without favorites gets an empty list without a call.
// Recommender failures are logged and also yield an empty list; browsing
// must never break because the model service is down.  Recommended ids
// that the catalog does not know are dropped.
func (s *AuthService) GetRecommendations(ctx context.Context, userID uint64) ([]model.Recommendation, error) {
	out := []model.Recommendation{}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fromRepo("recommendations", err)
	}
	if len(u.Favorites) == 0 || s.recommender == nil {
		return out, nil
	}

	favs, err := s.modules.GetByIDs(ctx, u.Favorites)
	if err != nil {
		return nil, fromRepo("recommendations: favorites", err)
	}
	q := ai.Query{FavoriteIDs: u.Favorites, Tags: favoriteTags(u.Favorites, favs), ProfileText: profileText(u.Profile)}

	scored, err := s.recommender.Recommend(ctx, q, s.topN)
	if err != nil {
		s.log.Warn("recommendation service unavailable, returning no recommendations",
			zap.Uint64("user_id", userID), zap.Error(err))
		return out, nil
	}
	if len(scored) == 0 {
		return out, nil
	}

	ids := make([]uint64, 0, len(scored))
	for _, sm := range scored {
		ids = append(ids, sm.ModuleID)
	}
	mods, err := s.modules.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fromRepo("recommendations: resolve", err)
	}
	for _, sm := range scored {
		m, ok := mods[sm.ModuleID]
		if !ok {
			continue
		}
		pct := model.Percent(sm.Score)
		out = append(out, model.Recommendation{
			Module:      m,
			Score:       pct,
			Band:        model.BandFor(pct),
			Explanation: sm.Explanation,
			Details:     sm.Details,
		})
	}
	return out, nil
}

// favoriteTags collects the distinct tags of the favorites in favorite
// order.
func favoriteTags(order []uint64, mods map[uint64]model.Module) []string {
	seen := map[string]bool{}
	var tags []string
	for _, id := range order {
		m, ok := mods[id]
		if !ok {
			continue
		}
		for _, t := range m.Tags() {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	return tags
}

func profileText(p model.Profile) string {
	parts := make([]string, 0, len(p.Interests)+len(p.Values)+len(p.Goals))
	parts = append(parts, p.Interests...)
	parts = append(parts, p.Values...)
	parts = append(parts, p.Goals...)
	return strings.Join(parts, " ")
}

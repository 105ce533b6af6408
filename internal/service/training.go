package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/vkm-portal/internal/model"
	"github.com/iliyamo/vkm-portal/internal/repository"
)

// TrainingData collects the whole catalog and every student's favorites and
// profile in the shape the recommender trains on.
func (s *AuthService) TrainingData(ctx context.Context) (model.TrainingSet, error) {
	set := model.TrainingSet{Modules: []model.Module{}, Users: []model.TrainingUser{}}

	for page := 1; ; page++ {
		p, err := s.modules.List(ctx, model.ModuleFilter{}, page, repository.MaxModulePageSize)
		if err != nil {
			return set, fromRepo("training data: modules", err)
		}
		set.Modules = append(set.Modules, p.Modules...)
		if len(p.Modules) == 0 || len(set.Modules) >= p.Total || page >= repository.MaxModulePage {
			break
		}
	}

	students, err := s.users.ListByRole(ctx, model.RoleStudent)
	if err != nil {
		return set, fromRepo("training data: students", err)
	}
	for _, u := range students {
		set.Users = append(set.Users, model.TrainingUser{
			ID:        u.ID,
			Favorites: nonNil(u.Favorites),
			Interests: nonNil(u.Profile.Interests),
			Values:    nonNil(u.Profile.Values),
			Goals:     nonNil(u.Profile.Goals),
		})
	}
	return set, nil
}

// Retrain sends the current training data to the recommender.  The model
// service trains in the background; the returned status only confirms it
// accepted the job.
func (s *AuthService) Retrain(ctx context.Context) (string, error) {
	if s.trainer == nil {
		return "", ErrTrainingUnavailable
	}
	set, err := s.TrainingData(ctx)
	if err != nil {
		return "", err
	}
	status, err := s.trainer.Train(ctx, set)
	if err != nil {
		s.log.Warn("retrain request failed", zap.Int("modules", len(set.Modules)), zap.Int("users", len(set.Users)), zap.Error(err))
		return "", ErrTrainingUnavailable
	}
	s.log.Info("retrain requested", zap.String("status", status), zap.Int("modules", len(set.Modules)), zap.Int("users", len(set.Users)))
	return status, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

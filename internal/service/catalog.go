package service

import (
	"context"

	"github.com/iliyamo/vkm-portal/internal/model"
	"github.com/iliyamo/vkm-portal/internal/repository"
)

// ListModules returns one page of the catalog.  page and limit are
// normalised by the repository.
func (s *AuthService) ListModules(ctx context.Context, f model.ModuleFilter, page, limit int) (model.ModulePage, error) {
	page, limit = repository.NormalizePage(page, limit)
	out, err := s.modules.List(ctx, f, page, limit)
	if err != nil {
		return model.ModulePage{}, fromRepo("list modules", err)
	}
	if out.Modules == nil {
		out.Modules = []model.Module{}
	}
	return out, nil
}

// GetModule resolves a raw path id to a catalog module.
func (s *AuthService) GetModule(ctx context.Context, rawID string) (*model.Module, error) {
	id, err := parseModuleID(rawID)
	if err != nil {
		return nil, err
	}
	m, err := s.modules.GetByID(ctx, id)
	if err != nil {
		return nil, fromRepo("get module", err)
	}
	return m, nil
}

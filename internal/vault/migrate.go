package vault

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/joescharf/ghostvault/internal/auth"
	"github.com/joescharf/ghostvault/internal/store"
)

// AnonymousHandle is shown for projects with no known creator email.
const AnonymousHandle = "Anonymous Ghost"

// MigrationResult counts the outcome of MigrateCreatorHandles.
type MigrationResult struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// MigrateCreatorHandles replaces every project's public creator name with
// a ghost handle derived from the creator email. Projects that fail to
// update are counted as skipped.
func (s *Service) MigrateCreatorHandles(ctx context.Context) (*MigrationResult, error) {
	projects, err := s.store.ListProjects(ctx, store.ProjectListFilter{})
	if err != nil {
		return nil, err
	}

	res := &MigrationResult{}
	for _, p := range projects {
		email := strings.ToLower(strings.TrimSpace(p.CreatorEmail))
		handle := AnonymousHandle
		if email != "" {
			handle = auth.MigrationHandle(email)
		}

		p.CreatorName = handle
		if err := s.store.UpdateProject(ctx, p); err != nil {
			s.logger.Warn("creator handle migration failed", zap.String("project", p.ID), zap.Error(err))
			res.Skipped++
			continue
		}
		s.logger.Debug("creator handle migrated", zap.String("project", p.ID), zap.String("handle", handle))
		res.Updated++
	}

	s.logger.Info("creator handle migration done", zap.Int("updated", res.Updated), zap.Int("skipped", res.Skipped))
	return res, nil
}

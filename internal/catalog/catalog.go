package catalog

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/sqlite"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

// Store provides access to the requirement catalogue backing every
// evaluation. Requirements are seeded at startup and can be extended
// through the same upsert path.
type Store struct {
	db *sqlite.Client
}

func NewStore(db *sqlite.Client) *Store {
	return &Store{db: db}
}

func (s *Store) All() ([]models.Requirement, error) {
	return s.db.ListRequirements()
}

func (s *Store) Get(id string) (*models.Requirement, error) {
	return s.db.GetRequirement(id)
}

// ByIDs resolves the given requirement ids, preserving order. Unknown
// ids are an error so a batch never silently shrinks.
func (s *Store) ByIDs(ids []string) ([]models.Requirement, error) {
	all, err := s.db.ListRequirements()
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Requirement, len(all))
	for _, req := range all {
		byID[req.ID] = req
	}

	reqs := make([]models.Requirement, 0, len(ids))
	for _, id := range ids {
		req, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown requirement id: %s", id)
		}
		reqs = append(reqs, req)
	}

	return reqs, nil
}

// InitializeSeedCatalog upserts the built-in requirement set.
func (s *Store) InitializeSeedCatalog() error {
	for i := range seedRequirements {
		req := seedRequirements[i]
		if err := s.db.InsertRequirement(&req); err != nil {
			return fmt.Errorf("failed to seed requirement %s: %w", req.ID, err)
		}
	}

	logger.Info("Requirement catalogue seeded", zap.Int("count", len(seedRequirements)))
	return nil
}

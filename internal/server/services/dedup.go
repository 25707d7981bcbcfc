package services

import (
	"cmp"
	"context"
	"database/sql"
	"slices"

	"github.com/dmitrijs2005/cipherbox/internal/server/models"
	"github.com/dmitrijs2005/cipherbox/internal/server/repositories/repomanager"
)

// DedupService finds an owner's files that share a plaintext fingerprint.
// It only reads; nothing is merged or deleted.
type DedupService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewDedupService(db *sql.DB, m repomanager.RepositoryManager) *DedupService {
	return &DedupService{db: db, repomanager: m}
}

// FindDuplicateGroups groups the owner's non-purged files (active and
// trashed) by content hash and keeps groups with two or more members.
// Members are ordered by upload time and groups by their earliest upload.
func (s *DedupService) FindDuplicateGroups(ctx context.Context, owner string) ([]models.DuplicateGroup, error) {
	all, err := s.repomanager.Files(s.db).ListNonPurged(ctx, owner)
	if err != nil {
		return nil, storeErr("list files", err)
	}
	return groupByHash(all), nil
}

// WastedBytes is the sum over duplicate groups of size * (members - 1).
func (s *DedupService) WastedBytes(ctx context.Context, owner string) (int64, error) {
	groups, err := s.FindDuplicateGroups(ctx, owner)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, g := range groups {
		total += g.WastedBytes()
	}
	return total, nil
}

func groupByHash(all []models.StoredFile) []models.DuplicateGroup {
	byHash := make(map[string][]models.StoredFile)
	for _, f := range all {
		if len(f.ContentHash) == 0 || !f.State.Visible() {
			continue
		}
		k := string(f.ContentHash)
		byHash[k] = append(byHash[k], f)
	}

	groups := make([]models.DuplicateGroup, 0)
	for _, members := range byHash {
		if len(members) < 2 {
			continue
		}
		slices.SortStableFunc(members, func(a, b models.StoredFile) int {
			if c := a.UploadedAt.Compare(b.UploadedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		groups = append(groups, models.DuplicateGroup{ContentHash: members[0].ContentHash, Files: members})
	}

	slices.SortFunc(groups, func(a, b models.DuplicateGroup) int {
		if c := a.EarliestUpload().Compare(b.EarliestUpload()); c != 0 {
			return c
		}
		return cmp.Compare(string(a.ContentHash), string(b.ContentHash))
	})
	return groups
}

package services

import (
	"context"
	"database/sql"
	"slices"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/server/models"
	"github.com/dmitrijs2005/cipherbox/internal/server/repositories/repomanager"
)

const (
	largeFilesLimit = 50
	usageListLimit  = 10
)

// Usage is an owner's most and least recently accessed active files.
type Usage struct {
	Hottest []models.StoredFile
	Coldest []models.StoredFile
}

// AnalyticsService answers read-only questions about an owner's storage.
type AnalyticsService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewAnalyticsService(db *sql.DB, m repomanager.RepositoryManager) *AnalyticsService {
	return &AnalyticsService{db: db, repomanager: m}
}

func (s *AnalyticsService) StorageSummary(ctx context.Context, owner string) (models.StorageSummary, error) {
	sum, err := s.repomanager.Files(s.db).Summary(ctx, owner)
	if err != nil {
		return sum, storeErr("summary", err)
	}
	return sum, nil
}

// Categories folds per-MIME-type usage into the fixed category set,
// ordered by total size, largest first.
func (s *AnalyticsService) Categories(ctx context.Context, owner string) ([]models.CategoryUsage, error) {
	byType, err := s.repomanager.Files(s.db).UsageByMimeType(ctx, owner)
	if err != nil {
		return nil, storeErr("usage by mime type", err)
	}

	idx := make(map[string]int)
	var result []models.CategoryUsage
	for _, u := range byType {
		c := models.CategoryOf(u.Category)
		i, ok := idx[c]
		if !ok {
			i = len(result)
			idx[c] = i
			result = append(result, models.CategoryUsage{Category: c})
		}
		result[i].Files += u.Files
		result[i].TotalBytes += u.TotalBytes
	}

	slices.SortStableFunc(result, func(a, b models.CategoryUsage) int {
		switch {
		case a.TotalBytes > b.TotalBytes:
			return -1
		case a.TotalBytes < b.TotalBytes:
			return 1
		default:
			return 0
		}
	})
	return result, nil
}

// LargeFiles lists active files above common.LargeFileThreshold, largest first.
func (s *AnalyticsService) LargeFiles(ctx context.Context, owner string) ([]models.StoredFile, error) {
	list, err := s.repomanager.Files(s.db).LargeFiles(ctx, owner, common.LargeFileThreshold, largeFilesLimit)
	if err != nil {
		return nil, storeErr("large files", err)
	}
	return list, nil
}

// Usage returns the ten most recently accessed files and up to ten files
// nobody opened within common.ColdAfter of now.
func (s *AnalyticsService) Usage(ctx context.Context, owner string, now time.Time) (*Usage, error) {
	repo := s.repomanager.Files(s.db)

	hot, err := repo.Hottest(ctx, owner, usageListLimit)
	if err != nil {
		return nil, storeErr("hottest", err)
	}
	cold, err := repo.Coldest(ctx, owner, now.Add(-common.ColdAfter), usageListLimit)
	if err != nil {
		return nil, storeErr("coldest", err)
	}
	return &Usage{Hottest: hot, Coldest: cold}, nil
}

package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hash(c string) []byte { return []byte(strings.Repeat(c, 32)) }

func newDedupService(t *testing.T, repo *memFilesRepo) *DedupService {
	t.Helper()
	db, _ := newSQLMockDB(t)
	return NewDedupService(db, &fakeRepoManager{f: repo})
}

func TestFindDuplicateGroups_ThreePlusOne(t *testing.T) {
	repo := newMemFilesRepo()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	const size = 4096

	// same content under different names and MIME types
	repo.put(models.StoredFile{Owner: "alice", DisplayName: "a.pdf", MimeType: "application/pdf", ContentHash: hash("H"), Size: size, UploadedAt: base.Add(2 * time.Hour)})
	repo.put(models.StoredFile{Owner: "alice", DisplayName: "b.bin", MimeType: "application/octet-stream", ContentHash: hash("H"), Size: size, UploadedAt: base})
	repo.put(models.StoredFile{Owner: "alice", DisplayName: "c.pdf", MimeType: "application/pdf", ContentHash: hash("H"), Size: size, UploadedAt: base.Add(time.Hour),
		State: models.StateTrashed, TrashedAt: &base})
	repo.put(models.StoredFile{Owner: "alice", DisplayName: "other", ContentHash: hash("J"), Size: 10, UploadedAt: base})
	// another owner's copy and a purged copy do not count
	repo.put(models.StoredFile{Owner: "bob", DisplayName: "a.pdf", ContentHash: hash("H"), Size: size, UploadedAt: base})
	repo.put(models.StoredFile{Owner: "alice", DisplayName: "gone", ContentHash: hash("H"), Size: size, UploadedAt: base, State: models.StatePurged, TrashedAt: &base})

	s := newDedupService(t, repo)

	groups, err := s.FindDuplicateGroups(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, hash("H"), groups[0].ContentHash)
	require.Len(t, groups[0].Files, 3)
	assert.Equal(t, []string{"b.bin", "c.pdf", "a.pdf"}, []string{
		groups[0].Files[0].DisplayName, groups[0].Files[1].DisplayName, groups[0].Files[2].DisplayName,
	})

	wasted, err := s.WastedBytes(context.Background(), "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2*size, wasted)
}

func TestFindDuplicateGroups_OrderedByEarliestUpload(t *testing.T) {
	repo := newMemFilesRepo()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, h := range []string{"B", "A"} {
		at := base.Add(time.Duration(i) * -time.Hour)
		repo.put(models.StoredFile{Owner: "alice", ContentHash: hash(h), Size: 1, UploadedAt: at})
		repo.put(models.StoredFile{Owner: "alice", ContentHash: hash(h), Size: 1, UploadedAt: at.Add(time.Minute)})
	}

	groups, err := newDedupService(t, repo).FindDuplicateGroups(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, hash("A"), groups[0].ContentHash)
	assert.Equal(t, hash("B"), groups[1].ContentHash)
}

func TestFindDuplicateGroups_Empty(t *testing.T) {
	repo := newMemFilesRepo()
	repo.put(models.StoredFile{Owner: "alice", ContentHash: hash("A"), Size: 1})

	s := newDedupService(t, repo)
	groups, err := s.FindDuplicateGroups(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, groups)

	wasted, err := s.WastedBytes(context.Background(), "alice")
	require.NoError(t, err)
	assert.Zero(t, wasted)
}

func TestFindDuplicateGroups_StoreFailure(t *testing.T) {
	repo := newMemFilesRepo()
	repo.selectErr = errBoom{}

	_, err := newDedupService(t, repo).WastedBytes(context.Background(), "alice")
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}

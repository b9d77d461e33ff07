package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"dealer-crm/internal/tenancy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustScope(t *testing.T, id int64) tenancy.Scope {
	t.Helper()
	s, err := tenancy.NewScope(id)
	require.NoError(t, err)
	return s
}

func upload(name, content string) Upload {
	return Upload{
		Filename:    name,
		Size:        int64(len(content)),
		ContentType: "application/octet-stream",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newService() (*Service, *MemoryRepo, *MemoryStore) {
	repo := NewMemoryRepo()
	repo.SetClock(tickingClock())
	store := NewMemoryStore()
	return NewService(repo, store), repo, store
}

func TestCreate_Manual(t *testing.T) {
	svc, _, _ := newService()
	kb, err := svc.Create(context.Background(), mustScope(t, 1), "user-1", CreateRequest{
		Name:       "  Hours ",
		SourceType: SourceManual,
		Content:    "Open 8-6 weekdays",
		SourceURL:  "https://ignored.example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hours", kb.Name)
	assert.Equal(t, int64(1), kb.DealershipID)
	assert.Equal(t, "user-1", kb.UserID)
	assert.Equal(t, "Open 8-6 weekdays", kb.Content)
	assert.Empty(t, kb.SourceURL)
}

func TestCreate_InvalidRequest(t *testing.T) {
	svc, repo, _ := newService()
	_, err := svc.Create(context.Background(), mustScope(t, 1), "", CreateRequest{SourceType: SourceManual})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	page, err := repo.List(context.Background(), mustScope(t, 1), 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestCreate_SingleFileAttachesToBase(t *testing.T) {
	svc, repo, store := newService()
	ctx := context.Background()
	scope := mustScope(t, 1)

	kb, err := svc.Create(ctx, scope, "", CreateRequest{
		Name:       "Price sheet",
		SourceType: SourceFile,
		Files:      []Upload{upload("prices.pdf", "%PDF-1.4")},
	})
	require.NoError(t, err)
	require.NotEmpty(t, kb.FilePath)
	assert.True(t, strings.HasPrefix(kb.FilePath, fmt.Sprintf("knowledge-bases/%d/", kb.ID)))
	assert.True(t, strings.HasSuffix(kb.FilePath, ".pdf"))

	data, ok := store.Object(kb.FilePath)
	require.True(t, ok)
	assert.Equal(t, "%PDF-1.4", string(data))

	page, err := repo.List(ctx, scope, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestCreate_MultipleFilesCreateChildren(t *testing.T) {
	svc, repo, _ := newService()
	ctx := context.Background()
	scope := mustScope(t, 1)

	kb, err := svc.Create(ctx, scope, "", CreateRequest{
		Name:       "Manuals",
		SourceType: SourceFile,
		Files:      []Upload{upload("a.pdf", "a"), upload("b.txt", "b")},
	})
	require.NoError(t, err)
	assert.Empty(t, kb.FilePath)

	page, err := repo.List(ctx, scope, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)

	names := map[string]string{}
	for _, item := range page.Items {
		names[item.Name] = item.FilePath
	}
	assert.Contains(t, names, "Manuals")
	assert.NotEmpty(t, names["Manuals - a.pdf"])
	assert.NotEmpty(t, names["Manuals - b.txt"])
}

func TestCreate_FilesWithoutStore(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	_, err := svc.Create(context.Background(), mustScope(t, 1), "", CreateRequest{
		Name:       "x",
		SourceType: SourceFile,
		Files:      []Upload{upload("a.pdf", "a")},
	})
	assert.ErrorIs(t, err, ErrStorageDisabled)
}

func TestCreate_OpenFailure(t *testing.T) {
	svc, _, _ := newService()
	f := upload("a.pdf", "a")
	f.Open = func() (io.ReadCloser, error) { return nil, errors.New("disk gone") }
	_, err := svc.Create(context.Background(), mustScope(t, 1), "", CreateRequest{Name: "x", SourceType: SourceFile, Files: []Upload{f}})
	assert.Error(t, err)

	page, err := svc.List(context.Background(), mustScope(t, 1), 1)
	require.NoError(t, err)
	assert.Zero(t, page.Total, "a failed upload must not leave the base record behind")
}

// flakyStore fails every Put after the first n.
type flakyStore struct {
	*MemoryStore
	n int
}

func (s *flakyStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if s.n <= 0 {
		return errors.New("s3 unavailable")
	}
	s.n--
	return s.MemoryStore.Put(ctx, key, body, size, contentType)
}

func TestCreate_UploadFailureRemovesEverything(t *testing.T) {
	repo := NewMemoryRepo()
	repo.SetClock(tickingClock())
	store := &flakyStore{MemoryStore: NewMemoryStore(), n: 1}
	svc := NewService(repo, store)
	ctx := context.Background()
	scope := mustScope(t, 1)

	_, err := svc.Create(ctx, scope, "", CreateRequest{
		Name:       "Manuals",
		SourceType: SourceFile,
		Files:      []Upload{upload("a.pdf", "a"), upload("b.pdf", "b"), upload("c.pdf", "c")},
	})
	require.Error(t, err)

	page, err := repo.List(ctx, scope, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.objects)
}

func TestMemoryRepo_DeleteIsScoped(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	kb, err := repo.Create(ctx, KnowledgeBase{DealershipID: 1, Name: "x", SourceType: SourceManual})
	require.NoError(t, err)

	assert.ErrorIs(t, repo.Delete(ctx, mustScope(t, 2), kb.ID), ErrNotFound)
	require.NoError(t, repo.Delete(ctx, mustScope(t, 1), kb.ID))
	assert.ErrorIs(t, repo.Delete(ctx, mustScope(t, 1), kb.ID), ErrNotFound)
}

func TestGet_IsScoped(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	kb, err := svc.Create(ctx, mustScope(t, 1), "", CreateRequest{Name: "x", SourceType: SourceManual, Content: "c"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, mustScope(t, 1), kb.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, mustScope(t, 2), kb.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.DownloadURL(ctx, mustScope(t, 2), kb.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_NewestFirstPaginated(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, err := svc.Create(ctx, mustScope(t, 1), "", CreateRequest{Name: fmt.Sprintf("kb-%02d", i), SourceType: SourceManual, Content: "c"})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, mustScope(t, 2), "", CreateRequest{Name: "other", SourceType: SourceManual, Content: "c"})
	require.NoError(t, err)

	first, err := svc.List(ctx, mustScope(t, 1), 0)
	require.NoError(t, err)
	assert.Equal(t, 12, first.Total)
	assert.Equal(t, 2, first.LastPage)
	require.Len(t, first.Items, 10)
	assert.Equal(t, "kb-11", first.Items[0].Name)

	second, err := svc.List(ctx, mustScope(t, 1), 2)
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.Equal(t, "kb-00", second.Items[1].Name)
}

func TestDownloadURL(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	scope := mustScope(t, 1)

	withFile, err := svc.Create(ctx, scope, "", CreateRequest{Name: "f", SourceType: SourceFile, Files: []Upload{upload("a.json", "{}")}})
	require.NoError(t, err)
	u, err := svc.DownloadURL(ctx, scope, withFile.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://files.local/"+withFile.FilePath+"?expires=300", u)

	noFile, err := svc.Create(ctx, scope, "", CreateRequest{Name: "m", SourceType: SourceManual, Content: "c"})
	require.NoError(t, err)
	_, err = svc.DownloadURL(ctx, scope, noFile.ID)
	assert.ErrorIs(t, err, ErrNoFile)
}

package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"dealer-crm/internal/tenancy"
	"dealer-crm/pkg/logger"

	"github.com/google/uuid"
)

// DownloadTTL is how long a presigned download link stays valid.
const DownloadTTL = 5 * time.Minute

type Service struct {
	repo  Repository
	store ObjectStore
}

// NewService wires the knowledge base. A nil store disables uploads and downloads.
func NewService(repo Repository, store ObjectStore) *Service {
	return &Service{repo: repo, store: store}
}

// Create validates req and stores it for the scope's dealership. A single file is
// attached to the new record; with several files each one gets its own record
// named "<name> - <filename>" and the base record keeps no file.
//
// Create is all or nothing: when any upload or write fails, the records and objects
// it already made are removed again.
func (s *Service) Create(ctx context.Context, scope tenancy.Scope, userID string, req CreateRequest) (KnowledgeBase, error) {
	if !scope.Valid() {
		return KnowledgeBase{}, tenancy.ErrInvalidScope
	}
	if err := req.Validate(); err != nil {
		return KnowledgeBase{}, err
	}
	if len(req.Files) > 0 && s.store == nil {
		return KnowledgeBase{}, ErrStorageDisabled
	}

	base := KnowledgeBase{
		DealershipID: scope.DealershipID(),
		UserID:       userID,
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		SourceType:   req.SourceType,
	}
	switch req.SourceType {
	case SourceLink:
		base.SourceURL = req.SourceURL
	case SourceManual:
		base.Content = req.Content
	}

	kb, err := s.repo.Create(ctx, base)
	if err != nil {
		return KnowledgeBase{}, err
	}
	log := logger.From(ctx).With("knowledge_base_id", kb.ID, "dealership_id", kb.DealershipID)

	made := &created{ids: []int64{kb.ID}}
	for _, f := range req.Files {
		key, err := s.upload(ctx, kb.ID, f)
		if err != nil {
			s.rollback(ctx, log, scope, made)
			return KnowledgeBase{}, err
		}
		made.keys = append(made.keys, key)
		if len(req.Files) == 1 {
			updated, err := s.repo.SetFilePath(ctx, scope, kb.ID, key)
			if err != nil {
				s.rollback(ctx, log, scope, made)
				return KnowledgeBase{}, err
			}
			kb = updated
			continue
		}
		child := base
		child.Name = kb.Name + " - " + f.Filename
		child.SourceType = SourceFile
		child.SourceURL, child.Content = "", ""
		child.FilePath = key
		c, err := s.repo.Create(ctx, child)
		if err != nil {
			s.rollback(ctx, log, scope, made)
			return KnowledgeBase{}, err
		}
		made.ids = append(made.ids, c.ID)
	}

	log.InfoContext(ctx, "knowledge base created", "source_type", kb.SourceType, "files", len(req.Files))
	return kb, nil
}

type created struct {
	ids  []int64
	keys []string
}

// rollback is best effort; leftovers are logged and the original error is returned
// by the caller.
func (s *Service) rollback(ctx context.Context, log *slog.Logger, scope tenancy.Scope, c *created) {
	// The request may already be cancelled; cleanup still has to reach the stores.
	ctx = context.WithoutCancel(ctx)
	for i := len(c.ids) - 1; i >= 0; i-- {
		if err := s.repo.Delete(ctx, scope, c.ids[i]); err != nil && !errors.Is(err, ErrNotFound) {
			log.WarnContext(ctx, "knowledge base rollback failed", "id", c.ids[i], "error", err)
		}
	}
	for _, key := range c.keys {
		if err := s.store.Delete(ctx, key); err != nil {
			log.WarnContext(ctx, "knowledge object rollback failed", "key", key, "error", err)
		}
	}
}

func (s *Service) upload(ctx context.Context, kbID int64, f Upload) (string, error) {
	if f.Open == nil {
		return "", fmt.Errorf("knowledge: file %q has no content", f.Filename)
	}
	body, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("knowledge: open %q: %w", f.Filename, err)
	}
	defer body.Close()

	ext := strings.ToLower(filepath.Ext(f.Filename))
	key := fmt.Sprintf("knowledge-bases/%d/%s%s", kbID, uuid.NewString(), ext)
	if err := s.store.Put(ctx, key, body, f.Size, f.ContentType); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Service) List(ctx context.Context, scope tenancy.Scope, page int) (Page, error) {
	if page < 1 {
		page = 1
	}
	return s.repo.List(ctx, scope, page, DefaultPerPage)
}

func (s *Service) Get(ctx context.Context, scope tenancy.Scope, id int64) (KnowledgeBase, error) {
	return s.repo.Get(ctx, scope, id)
}

// DownloadURL returns a presigned link to the record's file.
func (s *Service) DownloadURL(ctx context.Context, scope tenancy.Scope, id int64) (string, error) {
	kb, err := s.repo.Get(ctx, scope, id)
	if err != nil {
		return "", err
	}
	if kb.FilePath == "" {
		return "", ErrNoFile
	}
	if s.store == nil {
		return "", ErrStorageDisabled
	}
	return s.store.PresignGet(ctx, kb.FilePath, DownloadTTL)
}

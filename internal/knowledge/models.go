package knowledge

import (
	"context"
	"errors"
	"time"

	"dealer-crm/internal/tenancy"
)

var (
	ErrNotFound        = errors.New("knowledge: not found")
	ErrNoFile          = errors.New("knowledge: no file associated with this knowledge base")
	ErrStorageDisabled = errors.New("knowledge: file storage is not configured")
)

type SourceType string

const (
	SourceFile   SourceType = "file"
	SourceLink   SourceType = "link"
	SourceManual SourceType = "manual"
)

// KnowledgeBase is a document the voice assistant can draw on. Uploading several
// files at once creates one record per file next to the base record.
type KnowledgeBase struct {
	ID           int64      `json:"id"`
	DealershipID int64      `json:"dealership_id"`
	UserID       string     `json:"user_id,omitempty"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	SourceType   SourceType `json:"source_type"`
	SourceURL    string     `json:"source_url,omitempty"`
	Content      string     `json:"content,omitempty"`
	FilePath     string     `json:"file_path,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

const DefaultPerPage = 10

type Page struct {
	Items    []KnowledgeBase `json:"data"`
	Total    int             `json:"total"`
	Page     int             `json:"current_page"`
	PerPage  int             `json:"per_page"`
	LastPage int             `json:"last_page"`
}

func newPage(items []KnowledgeBase, total, page, perPage int) Page {
	last := (total + perPage - 1) / perPage
	if last < 1 {
		last = 1
	}
	if items == nil {
		items = []KnowledgeBase{}
	}
	return Page{Items: items, Total: total, Page: page, PerPage: perPage, LastPage: last}
}

// Repository stores knowledge bases. Reads are always dealership scoped; Create
// trusts kb.DealershipID, which the service takes from the caller's scope.
type Repository interface {
	Create(ctx context.Context, kb KnowledgeBase) (KnowledgeBase, error)
	SetFilePath(ctx context.Context, scope tenancy.Scope, id int64, path string) (KnowledgeBase, error)
	Get(ctx context.Context, scope tenancy.Scope, id int64) (KnowledgeBase, error)
	List(ctx context.Context, scope tenancy.Scope, page, perPage int) (Page, error)
	Delete(ctx context.Context, scope tenancy.Scope, id int64) error
}

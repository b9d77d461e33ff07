package httpapi

import (
	"io"
	"mime/multipart"
	"net/http"

	"dealer-crm/internal/auth"
	"dealer-crm/internal/knowledge"

	"github.com/gin-gonic/gin"
)

type createKnowledgeBaseRequest struct {
	Name        string `json:"name" form:"name"`
	Description string `json:"description" form:"description"`
	SourceType  string `json:"source_type" form:"source_type"`
	SourceURL   string `json:"source_url" form:"source_url"`
	Content     string `json:"content" form:"content"`
}

func (h *Handlers) ListKnowledgeBases(c *gin.Context) {
	s, ok := scope(c)
	if !ok {
		return
	}
	page, err := h.Knowledge.List(c.Request.Context(), s, pageParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"knowledge_bases": page})
}

// CreateKnowledgeBase accepts JSON or multipart form data. Files are read from the
// "files" and "files[]" form fields.
func (h *Handlers) CreateKnowledgeBase(c *gin.Context) {
	s, ok := scope(c)
	if !ok {
		return
	}
	var req createKnowledgeBaseRequest
	if err := c.ShouldBind(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	in := knowledge.CreateRequest{
		Name:        req.Name,
		Description: req.Description,
		SourceType:  knowledge.SourceType(req.SourceType),
		SourceURL:   req.SourceURL,
		Content:     req.Content,
	}
	if form, err := c.MultipartForm(); err == nil && form != nil {
		for _, field := range []string{"files", "files[]"} {
			for _, fh := range form.File[field] {
				in.Files = append(in.Files, uploadFromHeader(fh))
			}
		}
	}

	userID, _ := auth.UserID(c.Request.Context())
	kb, err := h.Knowledge.Create(c.Request.Context(), s, userID, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":        true,
		"message":        "Knowledge base created successfully",
		"knowledge_base": kb,
	})
}

func uploadFromHeader(fh *multipart.FileHeader) knowledge.Upload {
	return knowledge.Upload{
		Filename:    fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func (h *Handlers) GetKnowledgeBase(c *gin.Context) {
	s, ok := scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	kb, err := h.Knowledge.Get(c.Request.Context(), s, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, kb)
}

func (h *Handlers) DownloadKnowledgeBase(c *gin.Context) {
	s, ok := scope(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	u, err := h.Knowledge.DownloadURL(c.Request.Context(), s, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "url": u})
}

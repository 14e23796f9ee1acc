package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"news_crawler/internal/domain"
	"news_crawler/internal/scheduler"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultStatDays = 30
	maxStatDays     = 365
	topPostsLimit   = 5
)

type PostStore interface {
	List(ctx context.Context, filter domain.PostFilter) ([]domain.Post, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Post, error)
	IncrementClicks(ctx context.Context, id, delta int64) (int64, error)
	Count(ctx context.Context) (int64, error)
	Top(ctx context.Context, limit int) ([]domain.Post, error)
}

type CategoryStore interface {
	List(ctx context.Context) ([]domain.Category, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Category, error)
	ListByPost(ctx context.Context, postID int64) ([]domain.Category, error)
	Count(ctx context.Context) (int64, error)
}

type CategoryStatStore interface {
	ListByCategory(ctx context.Context, categoryID int64, since time.Time) ([]domain.CategoryStat, error)
}

type SourceStore interface {
	Count(ctx context.Context) (int64, error)
}

type AssetStore interface {
	ListByPost(ctx context.Context, postID int64) ([]domain.Asset, error)
}

// ClickRecorder takes view side effects off the request path.
type ClickRecorder interface {
	Record(postID int64) bool
}

type JobRunner interface {
	Trigger(name string) error
}

type Handler struct {
	posts      PostStore
	categories CategoryStore
	stats      CategoryStatStore
	sources    SourceStore
	assets     AssetStore
	clicks     ClickRecorder
	jobs       JobRunner
	logger     *slog.Logger
	now        func() time.Time
}

func NewHandler(
	posts PostStore,
	categories CategoryStore,
	stats CategoryStatStore,
	sources SourceStore,
	assets AssetStore,
	clicks ClickRecorder,
	jobs JobRunner,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		posts:      posts,
		categories: categories,
		stats:      stats,
		sources:    sources,
		assets:     assets,
		clicks:     clicks,
		jobs:       jobs,
		logger:     logger.With("component", "api"),
		now:        time.Now,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// ListPosts returns posts newest first, optionally narrowed to one category.
func (h *Handler) ListPosts(c *gin.Context) {
	page, err := intQuery(c, "page", 1, 1, 0)
	if err != nil {
		badRequest(c, err)
		return
	}
	size, err := intQuery(c, "page_size", defaultPageSize, 1, maxPageSize)
	if err != nil {
		badRequest(c, err)
		return
	}

	posts, err := h.posts.List(c.Request.Context(), domain.PostFilter{
		CategorySlug: c.Query("category"),
		Limit:        size,
		Offset:       (page - 1) * size,
	})
	if err != nil {
		h.internalError(c, "list posts", err)
		return
	}
	if posts == nil {
		posts = []domain.Post{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": posts,
		"meta": gin.H{"page": page, "page_size": size},
	})
}

// GetPost returns one post by slug and records the view without waiting
// for it to be stored.
func (h *Handler) GetPost(c *gin.Context) {
	ctx := c.Request.Context()

	post, err := h.posts.GetBySlug(ctx, c.Param("post"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if err != nil {
		h.internalError(c, "get post", err)
		return
	}

	if post.Images, err = h.assets.ListByPost(ctx, post.ID); err != nil {
		h.internalError(c, "list post images", err)
		return
	}
	if post.Categories, err = h.categories.ListByPost(ctx, post.ID); err != nil {
		h.internalError(c, "list post categories", err)
		return
	}

	h.clicks.Record(post.ID)

	c.JSON(http.StatusOK, gin.H{"data": post})
}

// RecordClick increments the click counter synchronously.
func (h *Handler) RecordClick(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("post"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}

	count, err := h.posts.IncrementClicks(c.Request.Context(), id, 1)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if err != nil {
		h.internalError(c, "record click", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "click_count": count})
}

func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.categories.List(c.Request.Context())
	if err != nil {
		h.internalError(c, "list categories", err)
		return
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	c.JSON(http.StatusOK, gin.H{"data": categories})
}

// CategoryStats returns the daily snapshots of the last `days` days.
func (h *Handler) CategoryStats(c *gin.Context) {
	ctx := c.Request.Context()

	days, err := intQuery(c, "days", defaultStatDays, 1, maxStatDays)
	if err != nil {
		badRequest(c, err)
		return
	}

	category, err := h.categories.GetBySlug(ctx, c.Param("slug"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
		return
	}
	if err != nil {
		h.internalError(c, "get category", err)
		return
	}

	since := h.now().UTC().AddDate(0, 0, -days)
	stats, err := h.stats.ListByCategory(ctx, category.ID, since)
	if err != nil {
		h.internalError(c, "list category stats", err)
		return
	}
	if stats == nil {
		stats = []domain.CategoryStat{}
	}

	c.JSON(http.StatusOK, gin.H{"category": category, "data": stats})
}

func (h *Handler) Overview(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		overview domain.Overview
		err      error
	)

	if overview.Posts, err = h.posts.Count(ctx); err != nil {
		h.internalError(c, "count posts", err)
		return
	}
	if overview.Categories, err = h.categories.Count(ctx); err != nil {
		h.internalError(c, "count categories", err)
		return
	}
	if overview.Sources, err = h.sources.Count(ctx); err != nil {
		h.internalError(c, "count sources", err)
		return
	}
	if overview.TopPosts, err = h.posts.Top(ctx, topPostsLimit); err != nil {
		h.internalError(c, "top posts", err)
		return
	}
	if overview.TopPosts == nil {
		overview.TopPosts = []domain.Post{}
	}

	c.JSON(http.StatusOK, gin.H{"data": overview})
}

// RunJob starts a scheduled job immediately in the background.
func (h *Handler) RunJob(c *gin.Context) {
	name := c.Param("name")

	err := h.jobs.Trigger(name)
	if errors.Is(err, scheduler.ErrUnknownJob) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	if errors.Is(err, scheduler.ErrJobRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": "job already running"})
		return
	}
	if errors.Is(err, scheduler.ErrStopped) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}
	if err != nil {
		h.internalError(c, "trigger job", err)
		return
	}

	h.logger.Info("job triggered via api", "job", name)
	c.JSON(http.StatusAccepted, gin.H{"job": name, "status": "started"})
}

func (h *Handler) internalError(c *gin.Context, op string, err error) {
	h.logger.Error("request failed", "op", op, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// intQuery parses an optional integer query parameter. Values below lo are
// rejected, values above hi are clamped; hi of zero means unbounded.
func intQuery(c *gin.Context, key string, def, lo, hi int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo {
		return 0, errors.New("invalid " + key)
	}
	if hi > 0 && v > hi {
		v = hi
	}
	return v, nil
}

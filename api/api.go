// Package api exposes the report service over HTTP with gin.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/seo-optimizer/competitor/errs"
	"github.com/seo-optimizer/competitor/keywords"
	"github.com/seo-optimizer/competitor/report"
	"github.com/seo-optimizer/competitor/stats"
)

// DefaultMaxUploadBytes caps request bodies when Settings leaves it unset
const DefaultMaxUploadBytes = 32 << 20

// StatsView serves the statistics endpoint
type StatsView interface {
	Summary(detailed bool) stats.Summary
}

// Settings tune request handling
type Settings struct {
	// DefaultMaxDepth applies when a crawl request sets no max_depth
	DefaultMaxDepth int
	MaxUploadBytes  int64
	// DevMode serves detailed statistics
	DevMode bool
}

type Handler struct {
	svc      *report.Service
	stats    StatsView
	settings Settings
	log      logrus.FieldLogger
}

func NewHandler(svc *report.Service, sv StatsView, settings Settings, log logrus.FieldLogger) *Handler {
	if settings.MaxUploadBytes <= 0 {
		settings.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{svc: svc, stats: sv, settings: settings, log: log}
}

// NewRouter builds the engine: middlewares first, then the API routes
func NewRouter(h *Handler, middlewares ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(middlewares...)
	h.Register(r)
	return r
}

// Register mounts the /api routes on r
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")
	api.GET("/health", h.health)
	api.POST("/keywords", h.keywordReport)
	api.POST("/compare", h.compare)
	api.POST("/crawl", h.crawl)
	api.GET("/crawl/stream", h.crawlStream)
	api.GET("/statistics", h.statistics)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) statistics(c *gin.Context) {
	if h.stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "statistics are disabled"})
		return
	}
	c.JSON(http.StatusOK, h.stats.Summary(h.settings.DevMode))
}

func (h *Handler) keywordReport(c *gin.Context) {
	if !h.limitBody(c) {
		return
	}
	ds, err := h.uploadedKeywords(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if ds == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a keyword file is required in the \"file\" field"})
		return
	}

	topN := 0
	if raw := c.PostForm("top_n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top_n must be a non-negative integer"})
			return
		}
		topN = n
	}
	c.JSON(http.StatusOK, h.svc.KeywordReport(ds, topN))
}

type compareRequest struct {
	CompetitorURL string `form:"competitor_url" json:"competitor_url" binding:"required"`
	MyURL         string `form:"my_url" json:"my_url" binding:"required"`
}

func (h *Handler) compare(c *gin.Context) {
	if !h.limitBody(c) {
		return
	}
	var req compareRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, errs.Input("compare", err))
		return
	}
	ds, err := h.uploadedKeywords(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	rep, err := h.svc.Compare(c.Request.Context(), req.CompetitorURL, req.MyURL, ds)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

type crawlRequest struct {
	URL         string   `json:"url" form:"url" binding:"required"`
	FollowLinks bool     `json:"follow_links" form:"follow_links"`
	MaxDepth    *int     `json:"max_depth" form:"max_depth"`
	MaxPages    int      `json:"max_pages" form:"max_pages"`
	SitemapURL  string   `json:"sitemap_url" form:"sitemap_url"`
	Keywords    []string `json:"keywords" form:"keywords"`
}

func (h *Handler) params(req crawlRequest) (report.CrawlParams, error) {
	p := report.CrawlParams{
		FollowLinks: req.FollowLinks,
		MaxDepth:    h.settings.DefaultMaxDepth,
		MaxPages:    req.MaxPages,
		SitemapURL:  req.SitemapURL,
		Keywords:    req.Keywords,
	}
	if req.MaxDepth != nil {
		p.MaxDepth = *req.MaxDepth
	}
	if p.MaxDepth < 0 || p.MaxPages < 0 {
		return p, errs.Inputf("crawl", "max_depth and max_pages must not be negative")
	}
	return p, nil
}

func (h *Handler) crawl(c *gin.Context) {
	var req crawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errs.Input("crawl", err))
		return
	}
	p, err := h.params(req)
	if err != nil {
		h.fail(c, err)
		return
	}

	rep, err := h.svc.Crawl(c.Request.Context(), req.URL, p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// uploadedKeywords loads the optional "file" field. It returns nil when
// the request carries no file.
func (h *Handler) uploadedKeywords(c *gin.Context) (*keywords.Dataset, error) {
	fh, err := c.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return nil, nil
	case err != nil:
		return nil, errs.Input("upload", err)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, errs.Input("upload", err)
	}
	defer f.Close()
	return h.svc.LoadKeywordsFrom(f, fh.Filename)
}

// limitBody caps the request body. It answers 413 and returns false when
// the declared length is already over the cap.
func (h *Handler) limitBody(c *gin.Context) bool {
	if c.Request.ContentLength > h.settings.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body is too large"})
		return false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.settings.MaxUploadBytes)
	return true
}

// fail maps err onto a status: input errors are the client's fault,
// anything else is ours.
func (h *Handler) fail(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body is too large"})
	case errs.IsInput(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed: " + err.Error()})
	}
}

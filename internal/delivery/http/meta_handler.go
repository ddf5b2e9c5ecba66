package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/gitrepo"
	"github.com/openuav/buildforge/internal/meta"
)

// MetaHandler serves the catalogs a client needs before it can submit:
// vehicles, remotes, releases, and the boards and features available at a
// given commit.
type MetaHandler struct {
	cache    *meta.Cache
	versions *meta.VersionCatalog
	vehicles *meta.VehicleCatalog
	logger   *zap.Logger
}

// NewMetaHandler creates a new MetaHandler.
func NewMetaHandler(cache *meta.Cache, versions *meta.VersionCatalog,
	vehicles *meta.VehicleCatalog, logger *zap.Logger) *MetaHandler {
	return &MetaHandler{
		cache:    cache,
		versions: versions,
		vehicles: vehicles,
		logger:   logger,
	}
}

// Vehicles handles GET /api/v1/vehicles
func (h *MetaHandler) Vehicles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"vehicles": h.vehicles.Names()})
}

// Remotes handles GET /api/v1/remotes
func (h *MetaHandler) Remotes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"remotes": h.versions.Remotes()})
}

// Releases handles GET /api/v1/remotes/:name/releases
func (h *MetaHandler) Releases(c *gin.Context) {
	name := c.Param("name")
	if _, ok := h.versions.Remote(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown remote: " + name})
		return
	}
	releases := h.versions.Releases(name)
	if releases == nil {
		releases = []meta.Release{}
	}
	c.JSON(http.StatusOK, gin.H{"releases": releases})
}

// Boards handles GET /api/v1/boards?remote=<name>&ref=<ref>
func (h *MetaHandler) Boards(c *gin.Context) {
	remote, ref, ok := h.sourceParams(c)
	if !ok {
		return
	}
	boards, err := h.cache.Boards(c.Request.Context(), remote, ref)
	if err != nil {
		h.sourceError(c, err, "Board lookup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"boards": boards})
}

// Features handles GET /api/v1/features?remote=<name>&ref=<ref>
func (h *MetaHandler) Features(c *gin.Context) {
	remote, ref, ok := h.sourceParams(c)
	if !ok {
		return
	}
	features, err := h.cache.BuildOptions(c.Request.Context(), remote, ref)
	if err != nil {
		h.sourceError(c, err, "Feature lookup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"features": features})
}

func (h *MetaHandler) sourceParams(c *gin.Context) (remote, ref string, ok bool) {
	remote = c.Query("remote")
	ref = c.Query("ref")
	if remote == "" || ref == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "remote and ref query parameters are required"})
		return "", "", false
	}
	return remote, ref, true
}

func (h *MetaHandler) sourceError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, gitrepo.ErrRemoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, gitrepo.ErrInvalidRefFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, gitrepo.ErrCommitNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

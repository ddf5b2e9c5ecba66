package http

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/domain"
	"github.com/openuav/buildforge/internal/gitrepo"
	"github.com/openuav/buildforge/internal/manager"
	"github.com/openuav/buildforge/internal/meta"
)

// SourceControl is the slice of the version-control client submission
// needs: remote bookkeeping plus ref resolution.
type SourceControl interface {
	AddRemote(ctx context.Context, remote, url string) error
	SetRemoteURL(ctx context.Context, remote, url string) error
	ResolveRef(ctx context.Context, remote, ref string) (string, error)
}

// SubmitRequest is the body of POST /api/v1/builds. Either Version (a
// release published for the remote) or CommitRef (a commit id or a
// refs/{heads|tags}/ name) selects what to build.
type SubmitRequest struct {
	VehicleID        string          `json:"vehicle_id" binding:"required"`
	Remote           string          `json:"remote" binding:"required"`
	Version          string          `json:"version"`
	CommitRef        string          `json:"commit_ref"`
	BoardID          string          `json:"board_id" binding:"required"`
	SelectedFeatures []string        `json:"selected_features"`
	CustomDefines    []domain.Define `json:"custom_defines"`
}

// SubmitResponse carries the assigned build id.
type SubmitResponse struct {
	BuildID string `json:"build_id"`
}

// BuildHandler handles HTTP requests for firmware builds.
type BuildHandler struct {
	mgr      *manager.BuildManager
	source   SourceControl
	versions *meta.VersionCatalog
	vehicles *meta.VehicleCatalog
	logger   *zap.Logger
}

// NewBuildHandler creates a new BuildHandler.
func NewBuildHandler(mgr *manager.BuildManager, source SourceControl,
	versions *meta.VersionCatalog, vehicles *meta.VehicleCatalog, logger *zap.Logger) *BuildHandler {
	return &BuildHandler{
		mgr:      mgr,
		source:   source,
		versions: versions,
		vehicles: vehicles,
		logger:   logger,
	}
}

// Submit handles POST /api/v1/builds
func (h *BuildHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if _, err := h.vehicles.Lookup(req.VehicleID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown vehicle: " + req.VehicleID})
		return
	}
	remote, ok := h.versions.Remote(req.Remote)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown remote: " + req.Remote})
		return
	}

	ref := req.CommitRef
	if req.Version != "" {
		release, ok := h.versions.Lookup(req.Remote, req.Version)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown version: " + req.Version})
			return
		}
		ref = release.CommitRef
	}
	if ref == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either version or commit_ref is required"})
		return
	}

	ctx := c.Request.Context()
	if err := h.ensureRemote(ctx, remote); err != nil {
		h.logger.Error("Failed to configure remote", zap.Error(err), zap.String("remote", remote.Name))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	commitID, err := h.source.ResolveRef(ctx, remote.Name, ref)
	if err != nil {
		switch {
		case errors.Is(err, gitrepo.ErrInvalidRefFormat):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, gitrepo.ErrCommitNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Ref resolution failed", zap.Error(err), zap.String("ref", ref))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	build := domain.NewBuild(req.VehicleID, remote, commitID, req.BoardID,
		req.SelectedFeatures, req.CustomDefines)
	id, err := h.mgr.Submit(ctx, build, c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRateLimitExceeded):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
		case errors.Is(err, domain.ErrDuplicateBuild):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Submit build failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusAccepted, SubmitResponse{BuildID: id})
}

func (h *BuildHandler) ensureRemote(ctx context.Context, remote domain.Remote) error {
	err := h.source.AddRemote(ctx, remote.Name, remote.URL)
	if errors.Is(err, gitrepo.ErrDuplicateRemote) {
		return h.source.SetRemoteURL(ctx, remote.Name, remote.URL)
	}
	return err
}

// List handles GET /api/v1/builds
func (h *BuildHandler) List(c *gin.Context) {
	snapshots, err := h.mgr.List(c.Request.Context())
	if err != nil {
		h.logger.Error("List builds failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"builds": snapshots})
}

// GetByID handles GET /api/v1/builds/:id
func (h *BuildHandler) GetByID(c *gin.Context) {
	id := c.Param("id")
	build, err := h.mgr.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrBuildNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Build not found"})
			return
		}
		h.logger.Error("Get build failed", zap.Error(err), zap.String("build_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, domain.Snapshot{BuildID: id, Build: *build})
}

// Log handles GET /api/v1/builds/:id/log. An optional tail query parameter
// limits the response to the last N lines.
func (h *BuildHandler) Log(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.mgr.Get(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Build not found"})
		return
	}
	raw, err := os.ReadFile(h.mgr.LogPath(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Build log not available yet"})
		return
	}

	content := string(raw)
	if tailStr := c.Query("tail"); tailStr != "" {
		tail, err := strconv.Atoi(tailStr)
		if err != nil || tail < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tail parameter"})
			return
		}
		content = tailLines(content, tail)
	}
	c.String(http.StatusOK, content)
}

// Artifact handles GET /api/v1/builds/:id/artifact. The archive is only
// served once the build succeeded.
func (h *BuildHandler) Artifact(c *gin.Context) {
	id := c.Param("id")
	build, err := h.mgr.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Build not found"})
		return
	}
	if build.Progress.State != domain.StateSuccess {
		c.JSON(http.StatusConflict, gin.H{"error": domain.ErrArtifactNotReady.Error()})
		return
	}
	path := h.mgr.ArchivePath(id)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Build artifact missing"})
		return
	}
	c.FileAttachment(path, id+".tar.gz")
}

func tailLines(content string, n int) string {
	if n == 0 {
		return ""
	}
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n") + "\n"
}

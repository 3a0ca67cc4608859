package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"objectstore/pkg/catalog"
)

// registerFileRoutes wires the file gateway's convenience API onto the
// same router as the object and replication endpoints, when a Gateway
// was configured. Nodes running without a file gateway simply omit
// Config.Gateway and never register these routes.
func (n *Node) registerFileRoutes() {
	if n.cfg.Gateway == nil {
		return
	}
	n.router.POST("/files/:name", n.handleUploadFile)
	n.router.GET("/files/:name", n.handleDownloadFile)
	n.router.DELETE("/files/:name", n.handleDeleteFile)
	n.router.GET("/files", n.handleListFiles)
}

func (n *Node) handleUploadFile(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file name"})
		return
	}

	fv, err := n.cfg.Gateway.Upload(name, c.ContentType(), c.Request.Body, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":       fv.Name,
		"version":    fv.Version,
		"total_size": fv.TotalSize,
		"chunks":     len(fv.Chunks),
	})
}

func (n *Node) handleDownloadFile(c *gin.Context) {
	name := c.Param("name")

	version := 0
	if raw := c.Query("version"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
			return
		}
		version = parsed
	}

	body, fv, err := n.cfg.Gateway.Download(c.Request.Context(), name, version)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.DataFromReader(http.StatusOK, fv.TotalSize, fv.ContentType, body, nil)
}

func (n *Node) handleDeleteFile(c *gin.Context) {
	name := c.Param("name")
	if err := n.cfg.Gateway.Delete(name); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (n *Node) handleListFiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"files": n.cfg.Gateway.List()})
}

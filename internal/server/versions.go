package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	documentdomain "github.com/lorekeep/lorekeep/internal/document/domain"
)

func (s *Server) CreateVersion(c *gin.Context) {
	var req documentdomain.CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.DocumentID = c.Param("id")

	version, err := s.docSvc.CreateVersion(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, version)
}

func (s *Server) ListVersions(c *gin.Context) {
	versions, err := s.docSvc.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

func (s *Server) ApproveVersion(c *gin.Context) {
	version, err := s.docSvc.ApproveVersion(c.Request.Context(), c.Param("id"), c.Param("version_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

func (s *Server) RejectVersion(c *gin.Context) {
	version, err := s.docSvc.RejectVersion(c.Request.Context(), c.Param("id"), c.Param("version_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

func (s *Server) ActivateVersion(c *gin.Context) {
	version, err := s.docSvc.ActivateVersion(c.Request.Context(), c.Param("id"), c.Param("version_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

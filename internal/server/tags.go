package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	documentdomain "github.com/lorekeep/lorekeep/internal/document/domain"
)

func (s *Server) CreateTag(c *gin.Context) {
	var req documentdomain.CreateTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tag, err := s.docSvc.CreateTag(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tag)
}

func (s *Server) ListTags(c *gin.Context) {
	tags, err := s.docSvc.ListTags(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (s *Server) DeleteTag(c *gin.Context) {
	if err := s.docSvc.DeleteTag(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) GrantUserTag(c *gin.Context) {
	err := s.docSvc.GrantUserTag(c.Request.Context(), c.Param("user_id"), c.Param("tag_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) RevokeUserTag(c *gin.Context) {
	err := s.docSvc.RevokeUserTag(c.Request.Context(), c.Param("user_id"), c.Param("tag_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mallardmetrics/mallard/internal/apierr"
	"github.com/mallardmetrics/mallard/internal/auth"
)

type createKeyRequest struct {
	Name  string `json:"name" binding:"required"`
	Scope string `json:"scope" binding:"required"`
}

func (s *Server) handleCreateKey(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest("invalid request body").Abort(c)
		return
	}

	var scope auth.Scope
	switch req.Scope {
	case "read_only":
		scope = auth.ScopeReadOnly
	case "full":
		scope = auth.ScopeFull
	default:
		apierr.BadRequest("scope must be \"read_only\" or \"full\"").Abort(c)
		return
	}

	plaintext, err := s.apiKeys.Generate(req.Name, scope)
	if err != nil {
		apierr.Wrap(apierr.CodeInternal, "failed to generate api key", err).Abort(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":  req.Name,
		"scope": req.Scope,
		"key":   plaintext,
	})
}

func (s *Server) handleListKeys(c *gin.Context) {
	keys := s.apiKeys.List()
	out := make([]gin.H, 0, len(keys))
	for _, k := range keys {
		out = append(out, gin.H{
			"hash":       k.KeyHash,
			"name":       k.Name,
			"scope":      k.Scope,
			"created_at": k.CreatedAt,
			"revoked":    k.Revoked,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleRevokeKey(c *gin.Context) {
	hash := c.Param("hash")
	if !s.apiKeys.RevokeByHash(hash) {
		apierr.NotFound("api key").Abort(c)
		return
	}
	c.Status(http.StatusNoContent)
}

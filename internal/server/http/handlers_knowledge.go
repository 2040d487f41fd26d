package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zhangleigang/knowledge-api/internal/server/knowledge"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

func (s *Server) categories(c *gin.Context) {
	dataOK(c, s.dataset.Categories)
}

// atoi parses a query parameter, returning 0 for anything unparsable so the
// dataset applies its defaults.
func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) questions(c *gin.Context) {
	page := s.dataset.Query(knowledge.Filter{
		Category: c.Query("category"),
		Keyword:  c.Query("keyword"),
		Page:     atoi(c.Query("page")),
		PageSize: atoi(c.Query("pageSize")),
	})
	dataOK(c, page)
}

func (s *Server) question(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		dataFail(c, http.StatusNotFound, "question not found")
		return
	}

	q, ok := s.dataset.ByID(id)
	if !ok {
		dataFail(c, http.StatusNotFound, "question not found")
		return
	}
	dataOK(c, q)
}

func (s *Server) full(c *gin.Context) {
	dataOK(c, s.dataset.Full())
}

func (s *Server) version(c *gin.Context) {
	dataOK(c, s.dataset.VersionInfo())
}

func (s *Server) notFound(c *gin.Context) {
	dataFail(c, http.StatusNotFound, "API not found")
}

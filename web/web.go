// Package web is the read-mostly JSON HTTP surface: GET /server, GET
// /server/{server_id}, GET /healthz, backed directly by the registry.
package web

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nabbar/ottd-masterserver/registry"
)

const requestIDHeader = "X-Request-Id"

var serverIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Server wires the three read-path routes onto a gin Engine.
type Server struct {
	reg registry.Registry
	log *logrus.Entry
}

// New returns a Server reading from reg.
func New(reg registry.Registry, log *logrus.Entry) *Server {
	return &Server{reg: reg, log: log}
}

// Register attaches the routes to an existing gin.Engine, so the launcher
// controls middleware and the listen address.
func (s *Server) Register(r gin.IRouter) {
	r.Use(s.requestID)
	r.GET("/server", s.listServers)
	r.GET("/server/:id", s.getServer)
	r.GET("/healthz", s.healthz)
}

// requestID tags every response with a fresh X-Request-Id and attaches it
// to the request-scoped logger, so a GetServerListForWeb failure logged
// below can be correlated back to the client-visible response.
func (s *Server) requestID(c *gin.Context) {
	id := uuid.NewString()
	c.Writer.Header().Set(requestIDHeader, id)
	c.Set("request_id", id)
	c.Next()
}

func (s *Server) listServers(c *gin.Context) {
	list, err := s.reg.GetServerListForWeb(c.Request.Context())
	if err != nil {
		s.log.WithError(err).WithField("request_id", c.GetString("request_id")).Warn("get_server_list_for_web failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	if list == nil {
		list = []registry.ServerDetail{}
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) getServer(c *gin.Context) {
	id := c.Param("id")
	if !serverIDPattern.MatchString(id) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "server_id is invalid"})
		return
	}

	detail, found, err := s.reg.GetServerInfoForWeb(c.Request.Context(), registry.ServerID(id))
	if err != nil {
		s.log.WithError(err).WithField("request_id", c.GetString("request_id")).Warn("get_server_info_for_web failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
		return
	}

	c.JSON(http.StatusOK, detail)
}

func (s *Server) healthz(c *gin.Context) {
	c.Status(http.StatusOK)
}

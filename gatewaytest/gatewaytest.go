// Package gatewaytest provides an in-process tool gateway for tests. It
// serves a fixed manifest and routes gateway calls to registered handlers,
// answering with the same envelopes as the production gateway.
package gatewaytest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// HandlerFunc implements one (tool, action) pair.
type HandlerFunc func(params map[string]any) (any, error)

// Call records a gateway request received by the server.
type Call struct {
	Tool       string
	Action     string
	Parameters map[string]any
}

// Server is a fake gateway backed by [httptest.Server].
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	manifest      string
	handlers      map[string]HandlerFunc
	calls         []Call
	manifestCalls int
}

type callRequest struct {
	Tool       string         `json:"tool"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
}

// NewServer starts a server that serves manifestJSON verbatim from
// /mcp/manifest. The caller must Close it.
func NewServer(manifestJSON string) *Server {
	s := &Server{
		manifest: manifestJSON,
		handlers: map[string]HandlerFunc{},
	}
	r := gin.New()
	r.GET("/mcp/manifest", s.serveManifest)
	r.POST("/mcp/gateway", s.serveGateway)
	s.Server = httptest.NewServer(r)
	return s
}

// Handle registers h for (tool, action).
func (s *Server) Handle(tool, action string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[tool+"."+action] = h
}

// Calls returns the gateway calls received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// ManifestRequests returns how many times the manifest was fetched.
func (s *Server) ManifestRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manifestCalls
}

func (s *Server) serveManifest(c *gin.Context) {
	s.mu.Lock()
	s.manifestCalls++
	body := s.manifest
	s.mu.Unlock()
	c.Data(http.StatusOK, "application/json", []byte(body))
}

func (s *Server) serveGateway(c *gin.Context) {
	var req callRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body is required"})
		return
	}
	if req.Tool == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Tool name is required"})
		return
	}
	if req.Action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Action is required"})
		return
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Tool: req.Tool, Action: req.Action, Parameters: req.Parameters})
	h, ok := s.handlers[req.Tool+"."+req.Action]
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Unknown tool: %s", req.Tool)})
		return
	}

	result, err := h(req.Parameters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"tool":   req.Tool,
			"action": req.Action,
			"status": "error",
			"error": gin.H{
				"type":    "ToolError",
				"message": err.Error(),
			},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tool":   req.Tool,
		"action": req.Action,
		"status": "success",
		"result": result,
	})
}

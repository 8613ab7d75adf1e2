package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/haql-ai/murshid/internal/advisory"
	murshiderrors "github.com/haql-ai/murshid/internal/errors"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

// handleQuery runs one advisory query. Processing never surfaces as a 5xx:
// pipeline failures come back as zero-confidence advisories.
func (s *Server) handleQuery(c *gin.Context) {
	var query advisory.Query
	if err := c.ShouldBindJSON(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed query: " + err.Error()})
		return
	}
	if strings.TrimSpace(query.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	if query.Language != "" && !query.Language.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "language must be \"ar\" or \"en\""})
		return
	}

	adv := s.coordinator.Process(c.Request.Context(), query)
	c.JSON(http.StatusOK, adv)
}

func (s *Server) handleRegister(c *gin.Context) {
	var card advisory.AgentCard
	if err := c.ShouldBindJSON(&card); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed card: " + err.Error()})
		return
	}
	if err := s.registry.Register(c.Request.Context(), card); err != nil {
		s.registryError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"agent_id": card.AgentID})
}

func (s *Server) handleListAgents(c *gin.Context) {
	var caps []advisory.Capability
	for _, raw := range c.QueryArray("capability") {
		for _, one := range strings.Split(raw, ",") {
			cap := advisory.Capability(strings.TrimSpace(one))
			if cap == "" {
				continue
			}
			if !cap.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown capability " + string(cap)})
				return
			}
			caps = append(caps, cap)
		}
	}

	if tags := c.QueryArray("tag"); len(tags) > 0 {
		cards, err := s.registry.DiscoverByTags(c.Request.Context(), tags)
		if err != nil {
			s.registryError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"agents": cards})
		return
	}

	cards, stale, err := s.registry.Discover(c.Request.Context(), caps)
	if err != nil && !errors.Is(err, murshiderrors.ErrNoAgents) {
		s.registryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": cards, "stale": stale})
}

func (s *Server) handleDiscoverByTags(c *gin.Context) {
	var body struct {
		Tags []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed body: " + err.Error()})
		return
	}
	if len(body.Tags) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tags are required"})
		return
	}
	cards, err := s.registry.DiscoverByTags(c.Request.Context(), body.Tags)
	if err != nil {
		s.registryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": cards})
}

// handleAgentHealth pings the agent's own health endpoint and relays the
// verdict. Built-in agents have no endpoint to ping and report healthy as
// long as their card is live.
func (s *Server) handleAgentHealth(c *gin.Context) {
	card, _, err := s.registry.Get(c.Request.Context(), c.Param("agent_id"))
	if err != nil {
		s.registryError(c, err)
		return
	}
	if card.HealthEndpoint == "" {
		c.JSON(http.StatusOK, gin.H{"agent_id": card.AgentID, "status": "healthy", "checked": false})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, card.HealthEndpoint, nil)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"agent_id": card.AgentID, "status": "unhealthy", "error": err.Error()})
		return
	}
	resp, err := s.probeClient.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"agent_id": card.AgentID, "status": "unhealthy", "error": err.Error()})
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.JSON(http.StatusBadGateway, gin.H{"agent_id": card.AgentID, "status": "unhealthy", "upstream_status": resp.StatusCode})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": card.AgentID, "status": "healthy", "checked": true})
}

func (s *Server) handleGetAgent(c *gin.Context) {
	card, stale, err := s.registry.Get(c.Request.Context(), c.Param("agent_id"))
	if err != nil {
		s.registryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": card, "stale": stale})
}

func (s *Server) handleDeregister(c *gin.Context) {
	if err := s.registry.Deregister(c.Request.Context(), c.Param("agent_id")); err != nil {
		s.registryError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleHeartbeat(c *gin.Context) {
	if err := s.registry.Heartbeat(c.Request.Context(), c.Param("agent_id")); err != nil {
		s.registryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": c.Param("agent_id"), "status": "alive"})
}

func (s *Server) handleUpdatePerformance(c *gin.Context) {
	var body struct {
		Score float64 `json:"score"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed body: " + err.Error()})
		return
	}
	if body.Score < 0 || body.Score > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "score must be in [0,1]"})
		return
	}
	if err := s.registry.UpdatePerformance(c.Request.Context(), c.Param("agent_id"), body.Score); err != nil {
		s.registryError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	var body struct {
		Status advisory.AgentStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed body: " + err.Error()})
		return
	}
	if !body.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + string(body.Status)})
		return
	}
	if err := s.registry.UpdateStatus(c.Request.Context(), c.Param("agent_id"), body.Status); err != nil {
		s.registryError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// registryError maps registry failures onto status codes.
func (s *Server) registryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, murshiderrors.ErrInvalidCard):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, murshiderrors.ErrUnknownAgent):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, murshiderrors.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "registry storage unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

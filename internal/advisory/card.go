package advisory

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AgentStatus is the lifecycle state of a registered expert agent.
type AgentStatus string

const (
	StatusActive      AgentStatus = "active"
	StatusBusy        AgentStatus = "busy"
	StatusInactive    AgentStatus = "inactive"
	StatusMaintenance AgentStatus = "maintenance"
)

// Valid reports whether s is a known agent status.
func (s AgentStatus) Valid() bool {
	switch s {
	case StatusActive, StatusBusy, StatusInactive, StatusMaintenance:
		return true
	}
	return false
}

// semverRe accepts plain MAJOR.MINOR.PATCH with an optional pre-release tag.
var semverRe = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?$`)

// AgentCard is the registry entry describing an expert agent. The registry is
// the single authority for card data; opinions reference cards by agent ID
// only and stay valid after the card expires.
type AgentCard struct {
	AgentID          string       `json:"agent_id"`
	Name             string       `json:"name"`
	Version          string       `json:"version"`
	DescriptionEN    string       `json:"description_en,omitempty"`
	DescriptionAR    string       `json:"description_ar,omitempty"`
	Capabilities     []Capability `json:"capabilities"`
	Skills           []string     `json:"skills,omitempty"`
	Endpoint         string       `json:"endpoint"`
	HealthEndpoint   string       `json:"health_endpoint,omitempty"`
	AuthScheme       string       `json:"auth_scheme,omitempty"`
	Status           AgentStatus  `json:"status"`
	PerformanceScore float64      `json:"performance_score"`
	LastHeartbeat    time.Time    `json:"last_heartbeat"`
	Tags             []string     `json:"tags,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Validate checks the required card fields. A card that fails validation is
// rejected by the registry with ErrInvalidCard wrapping the returned detail.
func (c *AgentCard) Validate() error {
	if strings.TrimSpace(c.AgentID) == "" {
		return fmt.Errorf("agent_id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !semverRe.MatchString(c.Version) {
		return fmt.Errorf("version %q is not a valid semver string", c.Version)
	}
	if len(c.Capabilities) == 0 {
		return fmt.Errorf("at least one capability is required")
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.Status != "" && !c.Status.Valid() {
		return fmt.Errorf("unknown status %q", c.Status)
	}
	if c.PerformanceScore < 0 || c.PerformanceScore > 1 {
		return fmt.Errorf("performance_score %.3f outside [0,1]", c.PerformanceScore)
	}
	return nil
}

// HasCapability reports whether the card advertises cap.
func (c *AgentCard) HasCapability(cap Capability) bool {
	for _, have := range c.Capabilities {
		if have == cap {
			return true
		}
	}
	return false
}

// CoversAll reports whether the card's capability set is a superset of caps.
func (c *AgentCard) CoversAll(caps []Capability) bool {
	for _, want := range caps {
		if !c.HasCapability(want) {
			return false
		}
	}
	return true
}

package model

import (
	"fmt"

	"github.com/querywarden/querywarden/pkg/resource"
)

// EnforcementMode controls whether a group's budget is actively enforced or
// only observed.
type EnforcementMode string

const (
	ModeEnforced    EnforcementMode = "enforced"
	ModeMonitorOnly EnforcementMode = "monitor_only"
)

// DefaultGroupID receives every query without an explicit group. The default
// group is unrestricted and monitor-only.
const DefaultGroupID = "default"

// Thresholds are fractions of node capacity in (0, 1]. Crossing Soft raises a
// warning; crossing Hard rejects new queries and cancels running ones when
// the group is enforced.
type Thresholds struct {
	Soft float64 `json:"soft" mapstructure:"soft"`
	Hard float64 `json:"hard" mapstructure:"hard"`
}

// GroupConfig is the resolved configuration of one query group. Its limit set
// is fixed at construction.
type GroupConfig struct {
	ID     string
	Mode   EnforcementMode
	limits map[resource.Type]Thresholds
}

// GroupDefinition is the serialized form a configuration source supplies,
// with limits keyed by resource type name.
type GroupDefinition struct {
	ID     string                `json:"id" mapstructure:"id"`
	Mode   string                `json:"mode" mapstructure:"mode"`
	Limits map[string]Thresholds `json:"limits" mapstructure:"limits"`
}

func NewGroupConfig(id string, mode EnforcementMode, limits map[resource.Type]Thresholds) (*GroupConfig, error) {
	if id == "" {
		return nil, fmt.Errorf("query group id is required")
	}
	switch mode {
	case ModeEnforced, ModeMonitorOnly:
	default:
		return nil, fmt.Errorf("query group %s: unknown enforcement mode %q", id, mode)
	}

	cfg := &GroupConfig{
		ID:     id,
		Mode:   mode,
		limits: make(map[resource.Type]Thresholds, len(limits)),
	}
	for t, th := range limits {
		if !t.Valid() {
			return nil, fmt.Errorf("query group %s: invalid resource type %d", id, int(t))
		}
		if th.Hard <= 0 || th.Hard > 1 {
			return nil, fmt.Errorf("query group %s: %s hard threshold %v out of (0, 1]", id, t, th.Hard)
		}
		if th.Soft < 0 || th.Soft > th.Hard {
			return nil, fmt.Errorf("query group %s: %s soft threshold %v exceeds hard %v", id, t, th.Soft, th.Hard)
		}
		cfg.limits[t] = th
	}
	return cfg, nil
}

// DefaultGroup is the implicit group for unattributed queries: no limits,
// never enforced.
func DefaultGroup() *GroupConfig {
	return &GroupConfig{ID: DefaultGroupID, Mode: ModeMonitorOnly}
}

// Threshold returns the limit configured for a resource type, if any.
func (c *GroupConfig) Threshold(t resource.Type) (Thresholds, bool) {
	th, ok := c.limits[t]
	return th, ok
}

func (c *GroupConfig) Enforced() bool {
	return c.Mode == ModeEnforced
}

// Config validates a serialized definition and resolves resource type names.
func (d GroupDefinition) Config() (*GroupConfig, error) {
	mode := EnforcementMode(d.Mode)
	if d.Mode == "" {
		mode = ModeMonitorOnly
	}

	limits := make(map[resource.Type]Thresholds, len(d.Limits))
	for name, th := range d.Limits {
		t, err := resource.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("query group %s: %w", d.ID, err)
		}
		limits[t] = th
	}
	return NewGroupConfig(d.ID, mode, limits)
}

package config

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// NewSnowflakeNode returns the id generator for this instance. NODE_ID must be
// unique across running instances.
func NewSnowflakeNode(cfg Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return node, nil
}

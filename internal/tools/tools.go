package tools

import (
	"fmt"
	"log"

	"github.com/fathom-research/fathom/config"
	"github.com/fathom-research/fathom/internal/agent/core"
	"github.com/fathom-research/fathom/internal/contextstore"
)

// NewRegistry builds a registry holding the default tool set.
func NewRegistry(cfg config.ToolsConfig, ix *contextstore.Index, logger *log.Logger) (*core.Registry, error) {
	reg := core.NewRegistry()
	for _, t := range []core.Tool{
		NewWebSearch(cfg, logger),
		NewWebFetch(cfg, logger),
		NewContextSearch(ix, logger),
	} {
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("register %s: %w", t.Name(), err)
		}
	}
	return reg, nil
}

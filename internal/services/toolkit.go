package services

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/agent"
	"github.com/lyallcooper/reclaim/internal/files"
	"github.com/lyallcooper/reclaim/internal/llm"
	"github.com/lyallcooper/reclaim/internal/scanner"
	"github.com/lyallcooper/reclaim/internal/search"
	"github.com/lyallcooper/reclaim/internal/settings"
	"github.com/lyallcooper/reclaim/internal/types"
)

// Toolkit bundles the collaborators a scan calls out to. A task keeps the
// toolkit it was started with even if a newer one is installed.
type Toolkit struct {
	Lister        scanner.Lister
	Classifier    scanner.Classifier
	Verifier      scanner.Verifier
	Usage         func(path string) (*types.Volume, error)
	Model         string
	SearchEnabled bool
}

// NewToolkit builds a toolkit from the current settings. Web search is
// wired only when it is enabled and has a key.
func NewToolkit(s settings.Settings, lister scanner.Lister, logger *zap.Logger) (*Toolkit, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	chat := llm.NewClient(llm.Config{
		Endpoint: s.APIEndpoint,
		APIKey:   s.APIKey,
		Model:    s.Model,
	})

	var searcher search.Searcher
	if s.SearchEnabled() {
		tavily, err := search.NewTavily(s.TavilyAPIKey, logger.Named("search"))
		if err != nil {
			return nil, fmt.Errorf("failed to create search client: %w", err)
		}
		searcher = tavily
	}

	a := agent.New(chat, searcher, logger.Named("agent"))
	return &Toolkit{
		Lister:        lister,
		Classifier:    a,
		Verifier:      a,
		Usage:         files.Usage,
		Model:         chat.Model(),
		SearchEnabled: a.SearchEnabled(),
	}, nil
}

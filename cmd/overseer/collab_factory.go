package main

import (
	"log"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/opspilot/overseer/internal/backlog"
	"github.com/opspilot/overseer/internal/collab"
	"github.com/opspilot/overseer/internal/config"
	"github.com/opspilot/overseer/internal/plan"
)

// buildCollaborators wires the model-backed collaborators from config. When
// no API credentials are available the deterministic fallbacks are used, so
// every command still works offline.
func buildCollaborators(cfg *config.Config) (backlog.BriefGenerator, backlog.ProjectResolver, plan.Proposer) {
	registryPath := cfg.Collaborators.Registry
	if registryPath == "" {
		registryPath = filepath.Join(config.DefaultConfigDir(), "projects.yaml")
	}
	registry, err := collab.LoadRegistry(registryPath)
	if err != nil {
		log.Printf("[cli] warning: project registry unusable: %v", err)
		registry = collab.NewRegistry(nil)
	}

	client, err := collab.NewClient(collab.ClientConfig{
		Model:         anthropic.Model(cfg.Collaborators.Model),
		APIKey:        cfg.Collaborators.APIKey,
		UseAWSBedrock: cfg.Collaborators.UseAWSBedrock,
		AWSRegion:     cfg.Collaborators.AWSRegion,
		AWSProfile:    cfg.Collaborators.AWSProfile,
	})
	if err != nil {
		log.Printf("[cli] no API credentials, using template collaborators: %v", err)
		return collab.TemplateBriefs{}, registry, collab.StaticPlanner{}
	}
	return collab.NewModelBriefs(client), registry, collab.NewModelPlanner(client)
}

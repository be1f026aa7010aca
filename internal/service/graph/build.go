package graph

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"echogate/internal/config"
)

// Build assembles the processor selected by cfg.Processor.
func Build(ctx context.Context, cfg *config.Config) (Processor, error) {
	pc := cfg.Processor
	stages := make([]NamedNode, 0, len(pc.Stages))
	for i, name := range pc.Stages {
		node, err := stageNode(ctx, cfg, name)
		if err != nil {
			return nil, err
		}
		stages = append(stages, NamedNode{Name: fmt.Sprintf("%s_%d", name, i), Node: node})
	}

	logrus.WithFields(logrus.Fields{
		"engine": pc.Engine,
		"stages": pc.Stages,
	}).Info("conversation processor ready")

	switch pc.Engine {
	case "eino":
		return NewEinoProcessor(ctx, pc.MaxSteps, stages...)
	case "native", "":
		compiled, err := Chain(stages...).Compile(pc.MaxSteps)
		if err != nil {
			return nil, fmt.Errorf("compile conversation graph: %w", err)
		}
		return NewGraphProcessor(compiled), nil
	default:
		return nil, fmt.Errorf("unknown processor engine: %s", pc.Engine)
	}
}

func stageNode(ctx context.Context, cfg *config.Config, name string) (Node, error) {
	switch name {
	case "echo":
		return Echo(), nil
	case "trim":
		return Trim(), nil
	case "model":
		provCfg, ok := cfg.Providers[cfg.Processor.Provider]
		if !ok {
			return nil, fmt.Errorf("provider %s not configured", cfg.Processor.Provider)
		}
		chatModel, err := NewChatModel(ctx, cfg.Processor.Provider, provCfg, cfg.Processor.Model)
		if err != nil {
			return nil, fmt.Errorf("init chat model: %w", err)
		}
		return Model(chatModel), nil
	default:
		return nil, fmt.Errorf("unknown processor stage: %s", name)
	}
}

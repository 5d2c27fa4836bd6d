package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Model kinds
const (
	ModelKindText  = "text"
	ModelKindImage = "image"
)

const (
	fallbackTextModel  = "gpt-4o-mini"
	fallbackImageModel = "dall-e-3"
)

// Model represents an available completion or image model
type Model struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Kind     string `json:"kind"`
}

// ModelsConfig holds the available models catalogue
type ModelsConfig struct {
	models []Model
}

// NewModelsConfig creates a new models configuration from a file
func NewModelsConfig(configPath string) (*ModelsConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var models []Model
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, err
	}

	for i := range models {
		if models[i].Kind == "" {
			models[i].Kind = ModelKindText
		}
		if models[i].Kind != ModelKindText && models[i].Kind != ModelKindImage {
			return nil, fmt.Errorf("model %q has unknown kind %q", models[i].ID, models[i].Kind)
		}
	}

	return &ModelsConfig{models: models}, nil
}

// GetAvailableModels returns the list of available models
func (mc *ModelsConfig) GetAvailableModels() []Model {
	return mc.models
}

// IsValidModel checks if a model ID is in the catalogue
func (mc *ModelsConfig) IsValidModel(modelID string) bool {
	for _, model := range mc.models {
		if model.ID == modelID {
			return true
		}
	}
	return false
}

// GetDefaultModel returns the first text model
func (mc *ModelsConfig) GetDefaultModel() string {
	return mc.firstOfKind(ModelKindText, fallbackTextModel)
}

// GetDefaultImageModel returns the first image model
func (mc *ModelsConfig) GetDefaultImageModel() string {
	return mc.firstOfKind(ModelKindImage, fallbackImageModel)
}

func (mc *ModelsConfig) firstOfKind(kind, fallback string) string {
	for _, model := range mc.models {
		if model.Kind == kind {
			return model.ID
		}
	}
	return fallback
}

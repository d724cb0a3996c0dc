package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BartekS5/blobmigrate/pkg/models"
)

// LoadCatalog reads the entity allow-list from a YAML file. An empty path
// yields the built-in catalog. Table names omitted from the file fall back to
// the built-in ones.
func LoadCatalog(filePath string) (*models.Catalog, error) {
	if filePath == "" {
		return models.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read entities file '%s': %w", filePath, err)
	}

	catalog := models.DefaultCatalog()
	catalog.Entities = nil
	if err := yaml.Unmarshal(data, catalog); err != nil {
		return nil, fmt.Errorf("failed to parse entities file '%s': %w", filePath, err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("entities file '%s': %w", filePath, err)
	}
	return catalog, nil
}

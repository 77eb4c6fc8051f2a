package config

import (
	"fmt"
	"os"

	"github.com/taicho/postgres-to-mongo/pkg/models"
)

// LoadMapping reads a YAML or JSON mapping file and builds its conversion units.
func LoadMapping(filePath string) ([]*models.TableTranslation, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file '%s': %w", filePath, err)
	}
	m, err := models.LoadMapping(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mapping file '%s': %w", filePath, err)
	}
	translations, err := m.ToTranslations()
	if err != nil {
		return nil, fmt.Errorf("invalid mapping file '%s': %w", filePath, err)
	}
	return translations, nil
}

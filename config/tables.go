package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"betslip/domain/entities"
)

//go:embed defaults/limit_tables.yaml
var defaultLimitTables []byte

var validate = validator.New()

// LoadLimitTables reads the house limit tables: parlay composition rows,
// teaser cards, pick ranges and payout ceilings. A non-empty path overrides
// the embedded defaults so a book can ship its own cards without rebuilding.
func LoadLimitTables(path string) (*entities.LimitTables, error) {
	data := defaultLimitTables
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read limit tables: %w", err)
		}
		data = b
	}

	var tables entities.LimitTables
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("failed to parse limit tables: %w", err)
	}

	if err := validate.Struct(&tables); err != nil {
		return nil, fmt.Errorf("invalid limit tables: %w", err)
	}

	return &tables, nil
}

package chunker

import (
	"fmt"

	"github.com/xxxsen/ragsearch/internal/pkg/errors"
)

type Config struct {
	ChunkSize            int
	ChunkOverlap         int
	MaxChunkSize         int
	MinChunkSize         int
	UseSemanticSplitting bool
	PreserveStructure    bool
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:            1000,
		ChunkOverlap:         200,
		MaxChunkSize:         2000,
		MinChunkSize:         100,
		UseSemanticSplitting: true,
		PreserveStructure:    true,
	}
}

func (c Config) Validate() error {
	switch {
	case c.ChunkSize <= 0:
		return fmt.Errorf("chunk size must be positive: %w", errors.ErrInvalidConfig)
	case c.ChunkOverlap < 0:
		return fmt.Errorf("chunk overlap must not be negative: %w", errors.ErrInvalidConfig)
	case c.ChunkOverlap >= c.ChunkSize:
		return fmt.Errorf("chunk overlap must be less than chunk size: %w", errors.ErrInvalidConfig)
	case c.MinChunkSize <= 0:
		return fmt.Errorf("minimum chunk size must be positive: %w", errors.ErrInvalidConfig)
	case c.MaxChunkSize < c.ChunkSize:
		return fmt.Errorf("maximum chunk size must be at least chunk size: %w", errors.ErrInvalidConfig)
	}
	return nil
}

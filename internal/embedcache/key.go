package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// contentHash identifies a text under one embedding model.
func contentHash(modelName, text string) string {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	sum := sha256.Sum256([]byte(modelName + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func cloneEmbedding(values []float32) []float32 {
	if values == nil {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}

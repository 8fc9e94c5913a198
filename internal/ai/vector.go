package ai

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pgvector/pgvector-go"
)

// FormatVector renders v in the pgvector text form "[v1,v2,...]".
func FormatVector(v []float32) string {
	return pgvector.NewVector(v).String()
}

// ParseVector is the inverse of FormatVector.
func ParseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("parse vector failed: %q is not bracketed", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []float32{}, nil
	}

	parts := strings.Split(body, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector element %d failed: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

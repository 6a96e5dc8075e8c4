package models

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewTenantID returns a new tenant identifier, e.g. TEN-1a2b3c4d5e6f.
func NewTenantID() string {
	return "TEN-" + uuidHex(12)
}

// NewProjectID returns a new tenant-scoped project identifier, e.g. PROJ-1a2b3c4d.
func NewProjectID() string {
	return "PROJ-" + uuidHex(8)
}

func uuidHex(n int) string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:n]
}

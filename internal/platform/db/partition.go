package db

import (
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PartitionPrefix is the schema name prefix shared by every tenant partition.
const PartitionPrefix = "phc_"

// Postgres truncates identifiers longer than 63 bytes.
const maxIdentifierLen = 63

var partitionPattern = regexp.MustCompile(`^phc_[a-z0-9_]+$`)

// PartitionName derives the schema name for a tenant. The name depends only
// on the tenant id, so it never changes after the tenant is created.
func PartitionName(tenantID uuid.UUID) string {
	return PartitionPrefix + hex.EncodeToString(tenantID[:])
}

// ValidPartitionName reports whether name is safe to use as a tenant schema.
func ValidPartitionName(name string) bool {
	return len(name) <= maxIdentifierLen && partitionPattern.MatchString(name)
}

// quoteIdent validates name and returns it quoted for use in DDL.
func quoteIdent(name string) (string, error) {
	if !ValidPartitionName(name) {
		return "", fmt.Errorf("invalid partition name %q", name)
	}
	return pgx.Identifier{name}.Sanitize(), nil
}

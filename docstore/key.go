package docstore

import (
	"strings"

	"github.com/c360/docstore/errors"
)

// KeyDelimiter separates entity type from entity id in a storage key.
const KeyDelimiter = ":"

// BuildKey maps (entityType, entityID) to a storage key of the form "type:id".
// The type may not contain the delimiter; the id may, since the first delimiter always ends the type.
func BuildKey(entityType, entityID string) (string, error) {
	if entityType == "" {
		return "", errors.WrapInvalid(errors.ErrInvalidArgument, "docstore", "BuildKey", "entity type cannot be empty")
	}
	if entityID == "" {
		return "", errors.WrapInvalid(errors.ErrInvalidArgument, "docstore", "BuildKey", "entity id cannot be empty")
	}
	if strings.Contains(entityType, KeyDelimiter) {
		return "", errors.WrapInvalid(errors.ErrInvalidArgument, "docstore", "BuildKey",
			"entity type cannot contain "+KeyDelimiter)
	}
	return entityType + KeyDelimiter + entityID, nil
}

// SplitKey reverses BuildKey.
func SplitKey(key string) (entityType, entityID string, ok bool) {
	entityType, entityID, ok = strings.Cut(key, KeyDelimiter)
	if !ok || entityType == "" || entityID == "" {
		return "", "", false
	}
	return entityType, entityID, true
}

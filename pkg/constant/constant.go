package constant

import (
	"strings"

	"github.com/gofrs/uuid"
)

// Collection name prefixes. Collection names can only contain numbers,
// letters and underscores, so UUIDs are converted before being used as part
// of a collection name.
const (
	kbCollectionPrefix   = "kb_"
	fileCollectionPrefix = "file_"
	memCollectionPrefix  = "mem_"
)

// KBCollectionName returns the vector collection name for a knowledge base,
// identified by its uuid-formatted UID.
func KBCollectionName(uid uuid.UUID) string {
	return kbCollectionPrefix + collectionSuffix(uid)
}

// FileCollectionName returns the name of the per-document vector collection
// of a file.
func FileCollectionName(uid uuid.UUID) string {
	return fileCollectionPrefix + collectionSuffix(uid)
}

// MemoryCollectionName returns the name of a user's memory vector
// collection.
func MemoryCollectionName(uid uuid.UUID) string {
	return memCollectionPrefix + collectionSuffix(uid)
}

func collectionSuffix(uid uuid.UUID) string {
	return strings.ReplaceAll(uid.String(), "-", "_")
}

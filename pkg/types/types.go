package types

import (
	"github.com/gofrs/uuid"
)

// UID type aliases provide type-safe-ish identifiers for the different
// entities in the system. Type aliases (= instead of named types) are used so
// the UIDs can be used interchangeably with uuid.UUID where needed.
type (
	// KBUIDType is a knowledge base unique identifier.
	KBUIDType = uuid.UUID
	// ChatUIDType is a chat unique identifier.
	ChatUIDType = uuid.UUID
	// FileUIDType is a file unique identifier.
	FileUIDType = uuid.UUID
	// TagUIDType is a tag unique identifier.
	TagUIDType = uuid.UUID
	// ModelUIDType is a model definition unique identifier.
	ModelUIDType = uuid.UUID

	// UserUIDType is a user unique identifier.
	UserUIDType = uuid.UUID
	// OwnerUIDType is an owner unique identifier.
	OwnerUIDType = uuid.UUID
)

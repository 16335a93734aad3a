package recur

import "github.com/xraph/recur/id"

// ID is the TypeID-based identifier for subscription records and events.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

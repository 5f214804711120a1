package ccng

import "github.com/braunsonm/cloud-controller-ng/id"

// ID is the primary identifier type for all Cloud Controller entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

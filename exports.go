package recur

import "github.com/xraph/recur/types"

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Address is re-exported from types package.
type Address = types.Address

// Entity is re-exported from types package.
type Entity = types.Entity

// ZeroAddress is the null identity.
const ZeroAddress = types.ZeroAddress

// Re-export Money constructors
var (
	USD  = types.USD
	EUR  = types.EUR
	GBP  = types.GBP
	JPY  = types.JPY
	Zero = types.Zero
)

// Re-export Entity constructor
var NewEntity = types.NewEntity

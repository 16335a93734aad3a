package types

// Address identifies an account on the ledger. Addresses are opaque
// strings supplied by the hosting environment's caller context; Recur
// never derives or validates their internal structure.
type Address string

// ZeroAddress is the null identity. It is never a valid owner or
// subscriber and is rejected wherever an Address is caller input.
const ZeroAddress Address = ""

// IsZero reports whether the address is the null identity.
func (a Address) IsZero() bool { return a == ZeroAddress }

// String returns the raw address string.
func (a Address) String() string { return string(a) }

// Short returns a truncated form suitable for log output.
func (a Address) Short() string {
	if len(a) <= 10 {
		return string(a)
	}
	return string(a[:6]) + "…" + string(a[len(a)-4:])
}

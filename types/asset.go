package types

// Asset names a fungible asset tracked under account balance keys. Assets are
// opaque symbols to the engine; only equality matters for matching.
type Asset string

func (a Asset) String() string { return string(a) }

package domain

// ChainID identifies a chain by its network name, e.g. "cosmoshub-4".
type ChainID string

func (c ChainID) String() string { return string(c) }

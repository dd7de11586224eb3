package domain

const (
	// Registry defaults
	DEFAULT_REGISTRY_NAME   = "Watchfan NFT Collection"
	DEFAULT_REGISTRY_SYMBOL = "WFC"

	// Blockchain constants
	ETHEREUM_ZERO_ADDRESS = "0x0000000000000000000000000000000000000000"
)

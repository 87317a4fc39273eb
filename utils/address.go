package utils

import "regexp"

// Accepted wallet address shapes: Ethereum hex or Solana base58.
var (
	ethAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	solAddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// IsValidWalletAddress reports whether addr looks like an Ethereum (0x + 40
// hex chars) or Solana (base58, 32-44 chars) address. Checksums are not
// verified; the upstream signup frontends submit addresses as the connected
// wallet reports them.
func IsValidWalletAddress(addr string) bool {
	return ethAddressPattern.MatchString(addr) || solAddressPattern.MatchString(addr)
}

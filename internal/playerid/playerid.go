// Package playerid converts between a player's public 64-bit identifier and
// the 32-bit account id stored in fact rows.
//
// A public id packs universe (8 bits), account type (4 bits), instance
// (20 bits) and account id (32 bits). Only individual accounts in the public
// universe on the desktop instance are accepted.
package playerid

// None is the public id reported for a missing player.
const None uint64 = 0

const (
	individualPrefix uint64 = 0x01100001
	accountMask      uint64 = 0xFFFFFFFF
)

// Decode returns the account id for id64. ok is false for anything that is
// not a structurally valid individual account id.
func Decode(id64 uint64) (accountID uint32, ok bool) {
	if id64>>32 != individualPrefix {
		return 0, false
	}
	accountID = uint32(id64 & accountMask)
	if accountID == 0 {
		return 0, false
	}
	return accountID, true
}

// Encode returns the public id for accountID. Account id 0 maps to None.
func Encode(accountID uint32) uint64 {
	if accountID == 0 {
		return None
	}
	return individualPrefix<<32 | uint64(accountID)
}

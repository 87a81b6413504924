package events

import (
	"encoding/hex"
	"math/big"
	"strconv"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func intToString(v int64) string {
	return strconv.FormatInt(v, 10)
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func addrHex(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func boolToString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

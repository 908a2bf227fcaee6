package asnutil

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strconv"
	"strings"

	"github.com/ansel1/merry"
)

var ErrInvalidHexString = errors.New("invalid hex string")

// ParseInt64 parses an integer value from a string.  The string
// may be a decimal number, or a hex string prefixed with "0x".
func ParseInt64(s string) (int64, error) {
	if strings.HasPrefix(s, "0x") {
		b, err := hex.DecodeString(s[2:])
		if err != nil {
			return 0, merry.Here(ErrInvalidHexString).WithCause(err)
		}
		if len(b) > 8 {
			return 0, merry.Here(ErrInvalidHexString).Append("must be max 8 bytes (16 hex characters)")
		}
		i := new(big.Int).SetBytes(b)
		if !i.IsInt64() {
			return 0, merry.Here(ErrInvalidHexString).Appendf("%s overflows int64", s)
		}
		return i.Int64(), nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, merry.Wrap(err)
	}
	return i, nil
}

package common

import (
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotHex       = errors.New("not a hex string")
	ErrWrongHexSize = errors.New("hex string has the wrong length")

	hexRegexp = regexp.MustCompile(`^[a-fA-F0-9]*$`)
)

// The returned string has No 0x prefix
func ByteSliceToPureHexStr(b []byte) string {
	return Trim0xPrefix(ethcommon.Bytes2Hex(b))
}

// HexStrToBytes32 converts a hex string (with/without prefix 0x) to [32]byte
func HexStrToBytes32(hexStr string) [32]byte {
	var bytes32 [32]byte
	copy(bytes32[:], ethcommon.Hex2BytesFixed(Trim0xPrefix(hexStr), 32))
	return bytes32
}

// Trim 0x or 0X prefix off the string.
func Trim0xPrefix(str string) string {
	s := strings.TrimPrefix(str, "0x")
	return strings.TrimPrefix(s, "0X")
}

func Prepend0xPrefix(str string) string {
	if strings.HasPrefix(str, "0x") || strings.HasPrefix(str, "0X") {
		return str
	}
	return "0x" + str
}

// IsHexString reports whether str, with or without 0x prefix, only holds
// hex digits.
func IsHexString(str string) bool {
	return hexRegexp.MatchString(Trim0xPrefix(str))
}

// ParseHash strictly parses a 32-byte hex string. Unlike HexStrToBytes32 it
// rejects short, long or non-hex input.
func ParseHash(str string) (ethcommon.Hash, error) {
	s := Trim0xPrefix(str)
	if !IsHexString(s) {
		return ethcommon.Hash{}, fmt.Errorf("%w: %q", ErrNotHex, str)
	}
	if len(s) != 2*ethcommon.HashLength {
		return ethcommon.Hash{}, fmt.Errorf("%w: %q", ErrWrongHexSize, str)
	}
	return ethcommon.HexToHash(s), nil
}

// ParseAddress strictly parses a 20-byte hex address.
func ParseAddress(str string) (ethcommon.Address, error) {
	s := Trim0xPrefix(str)
	if !IsHexString(s) {
		return ethcommon.Address{}, fmt.Errorf("%w: %q", ErrNotHex, str)
	}
	if len(s) != 2*ethcommon.AddressLength {
		return ethcommon.Address{}, fmt.Errorf("%w: %q", ErrWrongHexSize, str)
	}
	return ethcommon.HexToAddress(s), nil
}

// RandBytes32 generates [32]byte with random values
func RandBytes32() [32]byte {
	var b [32]byte
	n, err := rand.Read(b[:])

	if err != nil {
		return [32]byte{}
	}
	if n != 32 {
		return [32]byte{}
	}

	return b
}

func RandEthAddress() ethcommon.Address {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return ethcommon.Address{}
	}
	return ethcommon.BytesToAddress(b[:])
}

package ton

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

// NormalizeAddress принимает адрес кошелька TON в user-friendly ("EQ..."/"UQ...")
// или raw ("0:abcd...") форме и возвращает user-friendly строку,
// которую показываем покупателю.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty TON address")
	}

	if addr, err := address.ParseAddr(s); err == nil {
		return addr.String(), nil
	}

	workchain, hash, err := ParseRawAddress(s)
	if err != nil {
		return "", fmt.Errorf("invalid TON address %q: %w", s, err)
	}
	return address.NewAddress(0, byte(workchain), hash).String(), nil
}

// ParseRawAddress парсит строку вида "0:abcdef..." в workchain и address hash.
func ParseRawAddress(raw string) (workchain int32, addrHash []byte, err error) {
	wcPart, hashHex, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, nil, fmt.Errorf("invalid raw address format: %s", raw)
	}

	wc, err := strconv.ParseInt(wcPart, 10, 32)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid workchain %q: %w", wcPart, err)
	}
	if wc != 0 && wc != -1 {
		return 0, nil, fmt.Errorf("unsupported workchain %d", wc)
	}

	addrHash, err = hex.DecodeString(hashHex)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid address hash hex: %w", err)
	}
	if len(addrHash) != 32 {
		return 0, nil, fmt.Errorf("address hash must be 32 bytes, got %d", len(addrHash))
	}

	return int32(wc), addrHash, nil
}

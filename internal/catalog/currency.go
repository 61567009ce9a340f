package catalog

import (
	"fmt"
	"strings"

	"github.com/digital-shop/bot/internal/ton"
)

// Settlement currency/network codes
const (
	CurrencyUSDTTRC20 = "USDT_TRC20"
	CurrencyUSDTERC20 = "USDT_ERC20"
	CurrencyBTC       = "BTC"
	CurrencyETH       = "ETH"
	CurrencyTON       = "TON"
)

// KnownCurrencies is the display order of the currency menu.
var KnownCurrencies = []string{CurrencyUSDTTRC20, CurrencyUSDTERC20, CurrencyBTC, CurrencyETH, CurrencyTON}

func IsKnownCurrency(code string) bool {
	for _, c := range KnownCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

// CurrencyLabel turns "USDT_TRC20" into "USDT TRC20".
func CurrencyLabel(code string) string {
	return strings.ReplaceAll(code, "_", " ")
}

// Wallets maps a currency code to the receiving address configured for it.
type Wallets map[string]string

// Address returns the configured wallet for a currency; currencies without
// a wallet are not offered.
func (w Wallets) Address(code string) (string, bool) {
	addr, ok := w[code]
	if !ok || addr == "" {
		return "", false
	}
	return addr, true
}

// Available lists configured currencies in menu order.
func (w Wallets) Available() []string {
	var out []string
	for _, code := range KnownCurrencies {
		if _, ok := w.Address(code); ok {
			out = append(out, code)
		}
	}
	return out
}

// Normalize validates the configured addresses. Unknown codes are rejected and
// the TON wallet is rewritten to its user-friendly form.
func (w Wallets) Normalize() (Wallets, error) {
	out := make(Wallets, len(w))
	for code, addr := range w {
		if !IsKnownCurrency(code) {
			return nil, fmt.Errorf("unknown currency %q", code)
		}
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if code == CurrencyTON {
			friendly, err := ton.NormalizeAddress(addr)
			if err != nil {
				return nil, err
			}
			addr = friendly
		}
		out[code] = addr
	}
	return out, nil
}

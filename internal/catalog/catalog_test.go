package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
products:
  - id: 2
    name: "Second"
    price: "49.90"
    volumes:
      - title: "Only"
        file_path: "data/second.pdf"
  - id: 1
    name: "First"
    description: "two volumes"
    price: "200"
    volumes:
      - title: "Vol 1"
        description: "start"
        file_path: "data/1.pdf"
      - title: "Vol 2"
        file_path: "data/2.pdf"
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	products := c.Products()
	if len(products) != 2 || products[0].ID != 1 || products[1].ID != 2 {
		t.Fatalf("unexpected product order: %+v", products)
	}

	p, ok := c.Product(2)
	if !ok {
		t.Fatal("product 2 not found")
	}
	if !p.Price.Equal(decimal.RequireFromString("49.9")) {
		t.Errorf("price = %s, want 49.9", p.Price)
	}
	if p.Scope() != 1 {
		t.Errorf("scope = %d, want 1", p.Scope())
	}

	first, _ := c.Product(1)
	if v, ok := first.Volume(2); !ok || v.FilePath != "data/2.pdf" {
		t.Errorf("Volume(2) = %+v, %v", v, ok)
	}
	if _, ok := first.Volume(3); ok {
		t.Error("Volume(3) should not exist")
	}
	if _, ok := first.Volume(0); ok {
		t.Error("Volume(0) should not exist")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad price", "products:\n  - id: 1\n    name: A\n    price: abc\n    volumes: [{title: t, file_path: f}]\n"},
		{"zero price", "products:\n  - id: 1\n    name: A\n    price: \"0\"\n    volumes: [{title: t, file_path: f}]\n"},
		{"no volumes", "products:\n  - id: 1\n    name: A\n    price: \"10\"\n"},
		{"duplicate", "products:\n  - {id: 1, name: A, price: \"1\", volumes: [{title: t, file_path: f}]}\n  - {id: 1, name: B, price: \"1\", volumes: [{title: t, file_path: f}]}\n"},
		{"missing name", "products:\n  - id: 3\n    price: \"10\"\n    volumes: [{title: t, file_path: f}]\n"},
		{"volume without file", "products:\n  - id: 3\n    name: A\n    price: \"10\"\n    volumes: [{title: t}]\n"},
		{"not yaml", "products: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, tt.content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	p, ok := c.Product(1)
	if !ok {
		t.Fatal("default product missing")
	}
	if !p.Price.Equal(decimal.NewFromInt(200)) {
		t.Errorf("price = %s, want 200", p.Price)
	}
	if p.Scope() != 2 {
		t.Errorf("scope = %d, want 2", p.Scope())
	}
}

func TestWallets(t *testing.T) {
	w, err := Wallets{
		CurrencyBTC:       " bc1qexample ",
		CurrencyUSDTTRC20: "TExample",
		CurrencyETH:       "",
	}.Normalize()
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if addr, ok := w.Address(CurrencyBTC); !ok || addr != "bc1qexample" {
		t.Errorf("BTC address = %q, %v", addr, ok)
	}
	if _, ok := w.Address(CurrencyETH); ok {
		t.Error("empty ETH wallet should not be available")
	}

	got := w.Available()
	want := []string{CurrencyUSDTTRC20, CurrencyBTC}
	if len(got) != len(want) {
		t.Fatalf("Available() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Available()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := (Wallets{"DOGE": "x"}).Normalize(); err == nil {
		t.Error("unknown currency should be rejected")
	}
	if _, err := (Wallets{CurrencyTON: "garbage"}).Normalize(); err == nil {
		t.Error("invalid TON wallet should be rejected")
	}
}

func TestCurrencyLabel(t *testing.T) {
	if got := CurrencyLabel(CurrencyUSDTERC20); got != "USDT ERC20" {
		t.Errorf("CurrencyLabel = %q", got)
	}
}

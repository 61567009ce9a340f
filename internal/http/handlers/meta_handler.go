package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/digital-shop/bot/internal/catalog"
	"github.com/digital-shop/bot/internal/http/dto"
)

// MetaHandler serves the public storefront data.
type MetaHandler struct {
	catalog *catalog.Catalog
	wallets catalog.Wallets
}

func NewMetaHandler(cat *catalog.Catalog, wallets catalog.Wallets) *MetaHandler {
	return &MetaHandler{catalog: cat, wallets: wallets}
}

func (h *MetaHandler) GetProducts(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.catalog.Products()})
}

// GetCurrencies lists only currencies with a configured wallet.
func (h *MetaHandler) GetCurrencies(c *fiber.Ctx) error {
	codes := h.wallets.Available()
	out := make([]dto.CurrencyInfo, 0, len(codes))
	for _, code := range codes {
		out = append(out, dto.CurrencyInfo{Code: code, Label: catalog.CurrencyLabel(code)})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}

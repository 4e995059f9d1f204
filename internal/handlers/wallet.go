package handlers

import (
	"crest/internal/middleware"
	"crest/internal/services/wallet"
	"crest/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type WalletHandler struct {
	walletService wallet.Service
}

func NewWalletHandler(walletService wallet.Service) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
	}
}

func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return response.Unauthorized(c)
	}

	view, err := h.walletService.GetWallet(c.Context(), claims.UserID)
	if err != nil {
		return domainError(c, err)
	}

	return response.Success(c, "wallet", view)
}

func (h *WalletHandler) GetHistory(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return response.Unauthorized(c)
	}

	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	records, err := h.walletService.History(c.Context(), claims.UserID, limit, offset)
	if err != nil {
		return domainError(c, err)
	}

	return response.Success(c, "history", fiber.Map{
		"records": records,
		"limit":   limit,
		"offset":  offset,
	})
}

package handlers

import (
	"time"

	errs "crest/internal/errors"
	"crest/internal/middleware"
	"crest/internal/models"
	"crest/internal/repositories"
	"crest/internal/services/settlement"
	"crest/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// TransferHandler serves the deposit and withdrawal endpoints.
type TransferHandler struct {
	settlementService settlement.Service
	wallets           repositories.WalletRepository
}

func NewTransferHandler(settlementService settlement.Service, wallets repositories.WalletRepository) *TransferHandler {
	return &TransferHandler{
		settlementService: settlementService,
		wallets:           wallets,
	}
}

// transferView is the outward shape of a transfer. Amounts are decimal
// strings; zero-valued optional fields are omitted.
type transferView struct {
	ID                 string            `json:"id"`
	Kind               string            `json:"kind"`
	Status             string            `json:"status"`
	RequestedAmount    string            `json:"requested_amount"`
	DeductedAmount     string            `json:"deducted_amount,omitempty"`
	DeliveredAmount    string            `json:"delivered_amount,omitempty"`
	FundingAddress     string            `json:"funding_address,omitempty"`
	DestinationAddress string            `json:"destination_address,omitempty"`
	DestinationTxRef   string            `json:"destination_tx_ref,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	Steps              []settlement.Step `json:"steps,omitempty"`
}

func newTransferView(t *models.Transfer, steps []settlement.Step) transferView {
	view := transferView{
		ID:                 t.PublicID,
		Kind:               t.Kind,
		Status:             t.Status,
		RequestedAmount:    t.RequestedAmount.String(),
		DestinationAddress: t.DestinationAddress,
		DestinationTxRef:   t.DestinationTxRef,
		CreatedAt:          t.CreatedAt,
		Steps:              steps,
	}
	if t.DeductedAmount.Sign() > 0 {
		view.DeductedAmount = t.DeductedAmount.String()
	}
	if t.DeliveredAmount.Sign() > 0 {
		view.DeliveredAmount = t.DeliveredAmount.String()
	}
	// The funding address is only actionable while the transfer waits for
	// its first hop.
	if t.Status == models.TransferStatusWaitingStep1 {
		view.FundingAddress = t.FundingAddress
	}
	return view
}

func (h *TransferHandler) CreateDeposit(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return response.Unauthorized(c)
	}

	var input struct {
		Amount string `json:"amount"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "invalid request format")
	}

	amount, err := decimal.NewFromString(input.Amount)
	if err != nil {
		return domainError(c, errs.ErrInvalidAmount)
	}

	wallet, err := h.wallets.GetActiveByUserID(c.Context(), claims.UserID)
	if err != nil {
		return domainError(c, errs.ErrWalletNotFound)
	}

	transfer, err := h.settlementService.InitiateDeposit(c.Context(), wallet.ID, amount)
	if err != nil {
		return domainError(c, err)
	}

	view := newTransferView(transfer, settlement.Steps(transfer))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "deposit initiated",
		"data":    view,
	})
}

func (h *TransferHandler) CreateWithdrawal(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return response.Unauthorized(c)
	}

	var input struct {
		Amount      string `json:"amount"`
		Destination string `json:"destination"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "invalid request format")
	}

	amount, err := decimal.NewFromString(input.Amount)
	if err != nil {
		return domainError(c, errs.ErrInvalidAmount)
	}

	wallet, err := h.wallets.GetActiveByUserID(c.Context(), claims.UserID)
	if err != nil {
		return domainError(c, errs.ErrWalletNotFound)
	}

	transfer, err := h.settlementService.InitiateWithdrawal(c.Context(), wallet.ID, input.Destination, amount)
	if err != nil {
		return domainError(c, err)
	}

	view := newTransferView(transfer, settlement.Steps(transfer))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "withdrawal initiated",
		"data":    view,
	})
}

func (h *TransferHandler) GetDeposit(c *fiber.Ctx) error {
	return h.getTransfer(c, models.TransferKindDeposit)
}

func (h *TransferHandler) GetWithdrawal(c *fiber.Ctx) error {
	return h.getTransfer(c, models.TransferKindWithdrawal)
}

func (h *TransferHandler) getTransfer(c *fiber.Ctx, kind string) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return response.Unauthorized(c)
	}

	transfer, steps, err := h.settlementService.GetTransfer(c.Context(), c.Params("id"))
	if err != nil {
		return domainError(c, err)
	}

	// A transfer is only visible to its owner and only through the endpoint
	// of its own kind; everything else reads as not found.
	if transfer.Kind != kind || !h.owns(c, claims.UserID, transfer) {
		return domainError(c, errs.ErrTransferNotFound)
	}

	return response.Success(c, "transfer", newTransferView(transfer, steps))
}

// AttachPresentation links an external chat message to a transfer so status
// changes can edit it. Advisory only: bad refs never affect settlement.
func (h *TransferHandler) AttachPresentation(c *fiber.Ctx) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return response.Unauthorized(c)
	}

	var input struct {
		ChatRef    string `json:"chat_ref"`
		MessageRef string `json:"message_ref"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "invalid request format")
	}

	transfer, _, err := h.settlementService.GetTransfer(c.Context(), c.Params("id"))
	if err != nil {
		return domainError(c, err)
	}
	if !h.owns(c, claims.UserID, transfer) {
		return domainError(c, errs.ErrTransferNotFound)
	}

	if err := h.settlementService.AttachPresentation(c.Context(), transfer.PublicID, input.ChatRef, input.MessageRef); err != nil {
		return domainError(c, err)
	}
	return response.Success(c, "presentation attached", nil)
}

func (h *TransferHandler) owns(c *fiber.Ctx, userID uint, transfer *models.Transfer) bool {
	wallet, err := h.wallets.GetByID(c.Context(), transfer.WalletID)
	if err != nil {
		return false
	}
	return wallet.UserID == userID
}

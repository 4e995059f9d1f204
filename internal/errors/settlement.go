package errors

var (
	ErrInvalidAmount = &DomainError{
		Code:    "INVALID_AMOUNT",
		Message: "amount is below the platform minimum or malformed",
	}
	ErrInvalidAddress = &DomainError{
		Code:    "INVALID_ADDRESS",
		Message: "destination address is not valid",
	}
	ErrInsufficientBalance = &DomainError{
		Code:    "INSUFFICIENT_BALANCE",
		Message: "insufficient wallet balance",
	}
	ErrPendingWithdrawalExists = &DomainError{
		Code:    "PENDING_WITHDRAWAL_EXISTS",
		Message: "a withdrawal is already in progress for this wallet",
	}
	ErrWalletNotFound = &DomainError{
		Code:    "WALLET_NOT_FOUND",
		Message: "wallet not found",
	}
	ErrTransferNotFound = &DomainError{
		Code:    "TRANSFER_NOT_FOUND",
		Message: "transfer not found",
	}
	ErrBridgeUnavailable = &DomainError{
		Code:    "BRIDGE_UNAVAILABLE",
		Message: "bridge provider is temporarily unavailable",
	}
)

package settlement

import (
	"time"

	"crest/internal/models"
)

// Step states used by the projection.
const (
	StepStateDone    = "done"
	StepStateCurrent = "current"
	StepStatePending = "pending"
	StepStateSkipped = "skipped"
)

// Step is one line of the user-facing progress view of a transfer. The
// projection is derived entirely from the transfer row; it is never stored.
type Step struct {
	Seq         int        `json:"seq"`
	Description string     `json:"description"`
	State       string     `json:"state"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// stepDescriptions maps the six-step template per transfer kind. Steps 1-2
// complete together when the transfer is created, step 3 when the first hop
// delivers, steps 4-5 when the second hop delivers, and step 6 marks final
// settlement.
var stepDescriptions = map[string][6]string{
	models.TransferKindDeposit: {
		"Deposit request registered",
		"Funding address issued",
		"Funds received and first exchange completed",
		"Second exchange completed",
		"Delivery confirmed",
		"Balance credited",
	},
	models.TransferKindWithdrawal: {
		"Withdrawal request registered",
		"Balance reserved",
		"First exchange completed",
		"Second exchange completed",
		"Delivery to destination confirmed",
		"Withdrawal settled",
	},
}

// Steps projects a transfer onto its ordered six-step progress view.
func Steps(transfer *models.Transfer) []Step {
	descriptions := stepDescriptions[transfer.Kind]

	// completedThrough is the highest step already done; timestamps index
	// into completions by step number.
	var completedThrough int
	completions := [7]*time.Time{}

	createdAt := transfer.CreatedAt
	completions[1], completions[2] = &createdAt, &createdAt
	completedThrough = 2

	if transfer.Step1CompletedAt != nil {
		completions[3] = transfer.Step1CompletedAt
		completedThrough = 3
	}
	if transfer.Step2CompletedAt != nil {
		completions[4], completions[5] = transfer.Step2CompletedAt, transfer.Step2CompletedAt
		completedThrough = 5
	}
	if transfer.Status == models.TransferStatusFinished {
		completions[6] = transfer.Step2CompletedAt
		completedThrough = 6
	}

	failed := transfer.Terminal() && transfer.Status != models.TransferStatusFinished

	steps := make([]Step, 0, 6)
	for seq := 1; seq <= 6; seq++ {
		step := Step{Seq: seq, Description: descriptions[seq-1]}
		switch {
		case seq <= completedThrough:
			step.State = StepStateDone
			step.CompletedAt = completions[seq]
		case failed:
			step.State = StepStateSkipped
		case seq == completedThrough+1:
			step.State = StepStateCurrent
		default:
			step.State = StepStatePending
		}
		steps = append(steps, step)
	}

	if failed {
		steps = append(steps, Step{
			Seq:         7,
			Description: terminalDescription(transfer.Status),
			State:       StepStateDone,
		})
	}

	return steps
}

func terminalDescription(status string) string {
	switch status {
	case models.TransferStatusFailed:
		return "Transfer failed"
	case models.TransferStatusRefunded:
		return "Transfer refunded by provider"
	case models.TransferStatusExpired:
		return "Transfer expired before funding"
	default:
		return "Transfer closed"
	}
}

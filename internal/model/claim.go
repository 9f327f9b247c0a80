package model

import "time"

type ClaimStatus string

const (
	ClaimStatusClaimed ClaimStatus = "claimed"
	ClaimStatusOwned   ClaimStatus = "owned"
	ClaimStatusFailed  ClaimStatus = "failed"
)

type ClaimRecord struct {
	ID        int64       `json:"id"`
	RunID     string      `json:"runId"`
	Email     string      `json:"email"`
	Title     string      `json:"title"`
	OfferID   string      `json:"offerId"`
	Namespace string      `json:"namespace"`
	Status    ClaimStatus `json:"status"`
	OrderID   string      `json:"orderId,omitempty"`
	Error     string      `json:"error,omitempty"`
	At        time.Time   `json:"at"`
}

type RunSummary struct {
	RunID      string        `json:"runId"`
	Pass       int           `json:"pass"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Accounts   int           `json:"accounts"`
	Claims     []ClaimRecord `json:"claims"`
}

func (s RunSummary) Claimed() []ClaimRecord {
	var out []ClaimRecord
	for _, c := range s.Claims {
		if c.Status == ClaimStatusClaimed {
			out = append(out, c)
		}
	}
	return out
}

type RunnerState struct {
	Running        bool   `json:"running"`
	Pass           int    `json:"pass"`
	RunID          string `json:"runId,omitempty"`
	CurrentAccount string `json:"currentAccount,omitempty"`
	LastStartedMs  int64  `json:"lastStartedMs,omitempty"`
	LastFinishedMs int64  `json:"lastFinishedMs,omitempty"`
	NextPassMs     int64  `json:"nextPassMs,omitempty"`
	LastError      string `json:"lastError,omitempty"`
}

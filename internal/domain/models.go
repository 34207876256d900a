package domain

// Domain constants. The ledger seeds every new account with StartingBalance
// and inflation adds InflationIncrement to every existing account.
const (
	StartingBalance    int64 = 100
	InflationIncrement int64 = 10
)

// CommandKind identifies the operation requested by the upstream collaborator.
type CommandKind string

const (
	KindPay           CommandKind = "pay"
	KindBalance       CommandKind = "balance"
	KindEnsureAccount CommandKind = "ensure_account"
	KindInflation     CommandKind = "inflation"
	KindReset         CommandKind = "reset"
)

// Valid reports whether the kind is one the ledger knows how to execute.
func (k CommandKind) Valid() bool {
	switch k {
	case KindPay, KindBalance, KindEnsureAccount, KindInflation, KindReset:
		return true
	}
	return false
}

// Command is the structured request handed to the ledger. Parsing free-text
// chat input, resolving mentions to user ids and deciding IsAdmin are the
// caller's job; the ledger only sees this envelope.
type Command struct {
	Kind      CommandKind `json:"kind"`
	RequestID string      `json:"request_id"`
	ActorID   string      `json:"actor_id"`
	TargetID  string      `json:"target_id,omitempty"`
	Amount    int64       `json:"amount,omitempty"`
	IsAdmin   bool        `json:"is_admin,omitempty"`
	// Roster is the full set of user ids known to the external platform.
	// Only consulted by "reset", which reseeds every member.
	Roster []string `json:"roster,omitempty"`
}

// Status is the top-level outcome of a command.
type Status string

const (
	StatusOK Status = "ok"
	// StatusRejected covers expected domain outcomes; the Reason says which.
	StatusRejected Status = "rejected"
	// StatusUnavailable signals a storage fault. The caller may retry with
	// the same request id.
	StatusUnavailable Status = "unavailable"
)

// Reason discriminates rejected outcomes.
type Reason string

const (
	ReasonInvalidAmount     Reason = "InvalidAmount"
	ReasonPayerNotFound     Reason = "PayerNotFound"
	ReasonInsufficientFunds Reason = "InsufficientFunds"
	ReasonRecipientNotFound Reason = "RecipientNotFound"
	ReasonAlreadyExists     Reason = "AlreadyExists"
	ReasonNotFound          Reason = "NotFound"
	ReasonForbidden         Reason = "Forbidden"
	ReasonDuplicateRequest  Reason = "DuplicateRequest"
)

// AccountBalance is one row of a command result. Err is only populated by
// bulk operations, where a failure on one account must not hide the others.
type AccountBalance struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
	Err     string `json:"error,omitempty"`
}

// Result is the structured response for a single command.
type Result struct {
	Status   Status           `json:"status"`
	Reason   Reason           `json:"reason,omitempty"`
	Balances []AccountBalance `json:"balances,omitempty"`
}

// Account represents a user's ledger entry.
type Account struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

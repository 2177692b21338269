package models

import "time"

// ShareStatus is the settlement lifecycle state of an expense share.
type ShareStatus string

const (
	SharePending  ShareStatus = "pending"
	ShareAccepted ShareStatus = "accepted"
	ShareDisputed ShareStatus = "disputed"
	SharePaid     ShareStatus = "paid"
	ShareRejected ShareStatus = "rejected"
)

// Expense is a single payment made by one participant on behalf of the group.
// Expenses are immutable after creation except for deletion by their creator.
type Expense struct {
	ID          string    `json:"id" db:"id"`
	EventID     string    `json:"event_id" db:"event_id"`
	CreatorID   string    `json:"creator_id" db:"creator_id"`
	CategoryID  *string   `json:"category_id,omitempty" db:"category_id"`
	Amount      float64   `json:"amount" db:"amount"`
	Description string    `json:"description" db:"description"`
	Date        time.Time `json:"date" db:"date"`
	ReceiptURL  *string   `json:"receipt_url,omitempty" db:"receipt_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ExpenseShare is one debtor's portion of an expense. One row per debtor per
// expense; only the debtor may change the status.
type ExpenseShare struct {
	ID            string      `json:"id" db:"id"`
	ExpenseID     string      `json:"expense_id" db:"expense_id"`
	UserID        string      `json:"user_id" db:"user_id"`
	Amount        float64     `json:"amount" db:"amount"`
	Status        ShareStatus `json:"status" db:"status"`
	PaymentMethod *string     `json:"payment_method,omitempty" db:"payment_method"`
	PaymentDate   *time.Time  `json:"payment_date,omitempty" db:"payment_date"`
}

// ExpenseCategory is reference data, never mutated by this service.
type ExpenseCategory struct {
	ID   string  `json:"id" db:"id"`
	Name string  `json:"name" db:"name"`
	Icon *string `json:"icon,omitempty" db:"icon"`
}

// ShareView is a share decorated with the debtor's display name.
type ShareView struct {
	ExpenseShare
	UserName string `json:"user_name"`
}

// ExpenseView is the denormalized row returned to clients: the expense plus
// resolved category, creator name, and decorated shares.
type ExpenseView struct {
	Expense
	CategoryName string      `json:"category_name"`
	CategoryIcon *string     `json:"category_icon,omitempty"`
	CreatorName  string      `json:"creator_name"`
	Shares       []ShareView `json:"shares"`
}

// ExpenseSummary is the viewer's derived balance figures for one event.
// OwedToMe and IOwe count pending shares only; MyExpenses and MyShares are
// status-independent totals.
type ExpenseSummary struct {
	OwedToMe   float64 `json:"owed_to_me"`
	IOwe       float64 `json:"i_owe"`
	MyExpenses float64 `json:"my_expenses"`
	MyShares   float64 `json:"my_shares"`
}

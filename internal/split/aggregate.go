package split

import "github.com/trektally/backend/internal/models"

// Partition splits an event's combined expense list into the viewer's own
// expenses and those shared with the viewer. An expense the viewer neither
// created nor owes a share on lands in neither list; it still appears in the
// combined event-wide listing the caller already holds.
func Partition(all []models.ExpenseView, viewerID string) (mine, shared []models.ExpenseView) {
	mine = []models.ExpenseView{}
	shared = []models.ExpenseView{}
	for _, exp := range all {
		if exp.CreatorID == viewerID {
			mine = append(mine, exp)
			continue
		}
		for _, s := range exp.Shares {
			if s.UserID == viewerID {
				shared = append(shared, exp)
				break
			}
		}
	}
	return mine, shared
}

// Summarize computes the viewer's balance figures from already-partitioned
// lists. It is a full linear re-scan on every call; event-scoped expense
// counts are small enough that incremental updates are not worth the state.
//
//   - OwedToMe: pending shares owed to the viewer on expenses they created,
//     excluding any share held by the viewer themselves.
//   - IOwe: the viewer's own pending shares on expenses shared with them.
//   - MyExpenses: total of expenses the viewer created, regardless of status.
//   - MyShares: total of the viewer's shares on shared expenses, regardless
//     of status.
func Summarize(mine, shared []models.ExpenseView, viewerID string) models.ExpenseSummary {
	var sum models.ExpenseSummary

	for _, exp := range mine {
		sum.MyExpenses += exp.Amount
		for _, s := range exp.Shares {
			if s.UserID != viewerID && s.Status == models.SharePending {
				sum.OwedToMe += s.Amount
			}
		}
	}

	for _, exp := range shared {
		for _, s := range exp.Shares {
			if s.UserID != viewerID {
				continue
			}
			sum.MyShares += s.Amount
			if s.Status == models.SharePending {
				sum.IOwe += s.Amount
			}
		}
	}

	return sum
}

package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/giftcard-ledger/internal/model"
)

// VerifyLedger replays entries (oldest first) against card and reports every
// broken invariant:
//   - the first entry is the Purchase of the initial balance
//   - each entry's balance_before equals the previous entry's balance_after
//   - balance_after = balance_before + amount
//   - no balance is negative or above the initial balance
//   - the replayed sum equals the card's current balance
func VerifyLedger(card *model.GiftCard, entries []model.Transaction) *model.AuditReport {
	report := &model.AuditReport{
		CardID:         card.ID,
		Entries:        len(entries),
		CurrentBalance: card.CurrentBalance,
		Violations:     []string{},
	}
	fail := func(format string, args ...any) {
		report.Violations = append(report.Violations, fmt.Sprintf(format, args...))
	}

	if len(entries) == 0 {
		fail("ledger is empty")
	} else if first := entries[0]; first.Type != model.TxPurchase || !first.Amount.Equal(card.InitialBalance) {
		fail("entry 0: expected purchase of %s, got %s of %s",
			card.InitialBalance.StringFixed(2), first.Type, first.Amount.StringFixed(2))
	}

	sum := decimal.Zero
	prev := decimal.Zero
	for i, e := range entries {
		if !e.BalanceBefore.Equal(prev) {
			fail("entry %d: balance_before %s does not continue from %s",
				i, e.BalanceBefore.StringFixed(2), prev.StringFixed(2))
		}
		if !e.BalanceAfter.Equal(e.BalanceBefore.Add(e.Amount)) {
			fail("entry %d: balance_after %s != %s + %s",
				i, e.BalanceAfter.StringFixed(2), e.BalanceBefore.StringFixed(2), e.Amount.StringFixed(2))
		}
		if e.BalanceAfter.IsNegative() {
			fail("entry %d: negative balance %s", i, e.BalanceAfter.StringFixed(2))
		}
		if e.BalanceAfter.GreaterThan(card.InitialBalance) {
			fail("entry %d: balance %s exceeds initial balance %s",
				i, e.BalanceAfter.StringFixed(2), card.InitialBalance.StringFixed(2))
		}
		sum = sum.Add(e.Amount)
		prev = e.BalanceAfter
	}

	report.ReplayedBalance = sum
	if !sum.Equal(card.CurrentBalance) {
		fail("replayed balance %s != current balance %s",
			sum.StringFixed(2), card.CurrentBalance.StringFixed(2))
	}
	if card.CurrentBalance.IsNegative() {
		fail("current balance %s is negative", card.CurrentBalance.StringFixed(2))
	}

	report.Consistent = len(report.Violations) == 0
	return report
}

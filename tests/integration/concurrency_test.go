//go:build integration

package integration

import (
	"net/http"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// TestConcurrentRedeemOverdraw sends two redemptions of 60 against a card of
// 100 through the HTTP API. Exactly one succeeds.
func TestConcurrentRedeemOverdraw(t *testing.T) {
	cleanupTables(t)

	brand := createBrand(t, "Overdraw")
	issued := issueCard(t, brand.ID, "100")

	statuses := redeemConcurrently(t, issued, "60", 2)

	assert.Equal(t, 1, statuses[http.StatusOK], "Exactly one redemption should succeed")
	assert.Equal(t, 1, statuses[http.StatusBadRequest], "The other should be rejected as insufficient")

	balance, status, entries := getCardFromDB(t, issued.Card.ID)
	assert.True(t, balance.Equal(decimal.RequireFromString("40")))
	assert.Equal(t, "active", status)
	assert.Equal(t, 2, entries)
}

// TestConcurrentRedeemDrain sends 30 redemptions of 5 against a card of 100.
func TestConcurrentRedeemDrain(t *testing.T) {
	cleanupTables(t)

	brand := createBrand(t, "Drain")
	issued := issueCard(t, brand.ID, "100")

	statuses := redeemConcurrently(t, issued, "5", 30)

	assert.Equal(t, 20, statuses[http.StatusOK])
	assert.Equal(t, 10, statuses[http.StatusBadRequest])

	balance, status, entries := getCardFromDB(t, issued.Card.ID)
	assert.True(t, balance.IsZero())
	assert.Equal(t, "depleted", status)
	assert.Equal(t, 21, entries)
}

func redeemConcurrently(t *testing.T, issued issuedResponse, amount string, n int) map[int]int {
	t.Helper()

	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			resp, err := postJSON("/api/cards/redeem", map[string]string{
				"card_number": issued.Card.CardNumber,
				"pin":         issued.PIN,
				"amount":      amount,
			})
			if err != nil {
				t.Logf("Request error: %v", err)
				results <- 0
				return
			}
			resp.Body.Close()
			results <- resp.StatusCode
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	statuses := make(map[int]int)
	for code := range results {
		statuses[code]++
	}
	t.Logf("Status codes: %v", statuses)
	return statuses
}

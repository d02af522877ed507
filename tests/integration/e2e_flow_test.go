//go:build integration

// Package integration contains end-to-end API flow tests that verify
// the complete card journey through the gift card ledger.
package integration

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E_IssueRedeemVoidFlow tests the complete happy path:
// 1. Create a brand and issue a card
// 2. Look the card up by printed number, lookup code and scan payload
// 3. Check the balance and redeem part of it
// 4. Void the card and verify the ledger
func TestE2E_IssueRedeemVoidFlow(t *testing.T) {
	cleanupTables(t)

	t.Log("Step 1: Creating brand and issuing card")
	brand := createBrand(t, "Corner Bakery")
	assert.Equal(t, "corner-bakery", brand.Slug)

	issued := issueCard(t, brand.ID, "100.00")
	require.Len(t, issued.PIN, 4)
	assert.Equal(t, "active", issued.Card.Status)

	t.Log("Step 2: Looking up by every identifier form")
	for _, body := range []map[string]string{
		{"card_number": issued.PrintedNumber},
		{"code": issued.Card.CardCode},
		{"code": string(issued.ScanPayload)},
	} {
		resp, err := postJSON("/api/cards/lookup", body)
		require.NoError(t, err)
		var view map[string]any
		require.NoError(t, readJSONResponse(resp, &view))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, issued.Card.CardNumber, view["card_number"])
		assert.NotContains(t, view, "current_balance", "lookup must not reveal the balance")
	}

	t.Log("Step 3: Checking balance and redeeming")
	resp, err := postJSON("/api/cards/balance", map[string]string{
		"card_number": issued.Card.CardNumber,
		"pin":         issued.PIN,
	})
	require.NoError(t, err)
	var balance struct {
		CurrentBalance decimal.Decimal `json:"current_balance"`
	}
	require.NoError(t, readJSONResponse(resp, &balance))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, balance.CurrentBalance.Equal(decimal.RequireFromString("100")))

	resp, err = postJSON("/api/cards/redeem", map[string]string{
		"card_number": issued.PrintedNumber,
		"pin":         issued.PIN,
		"amount":      "40",
		"description": "sourdough",
	})
	require.NoError(t, err)
	var redeemed struct {
		PreviousBalance decimal.Decimal `json:"previous_balance"`
		NewBalance      decimal.Decimal `json:"new_balance"`
		Status          string          `json:"status"`
	}
	require.NoError(t, readJSONResponse(resp, &redeemed))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, redeemed.PreviousBalance.Equal(decimal.RequireFromString("100")))
	assert.True(t, redeemed.NewBalance.Equal(decimal.RequireFromString("60")))
	assert.Equal(t, "active", redeemed.Status)

	t.Log("Step 4: Voiding and verifying the ledger")
	resp, err = postJSON("/api/admin/cards/"+issued.Card.ID+"/void", map[string]string{"reason": "fraud report"})
	require.NoError(t, err)
	var voided struct {
		Forfeited decimal.Decimal `json:"forfeited"`
		Status    string          `json:"status"`
	}
	require.NoError(t, readJSONResponse(resp, &voided))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, voided.Forfeited.Equal(decimal.RequireFromString("60")))
	assert.Equal(t, "voided", voided.Status)

	dbBalance, status, entries := getCardFromDB(t, issued.Card.ID)
	assert.True(t, dbBalance.IsZero())
	assert.Equal(t, "voided", status)
	assert.Equal(t, 3, entries, "purchase, redemption, void")

	resp, err = getJSON("/api/admin/cards/" + issued.Card.ID + "/audit")
	require.NoError(t, err)
	var report struct {
		Consistent bool     `json:"consistent"`
		Violations []string `json:"violations"`
	}
	require.NoError(t, readJSONResponse(resp, &report))
	assert.True(t, report.Consistent, "violations: %v", report.Violations)

	resp, err = getJSON("/api/admin/cards/" + issued.Card.ID + "/status-history")
	require.NoError(t, err)
	var history struct {
		StatusChanges []struct {
			FromStatus string `json:"from_status"`
			ToStatus   string `json:"to_status"`
		} `json:"status_changes"`
	}
	require.NoError(t, readJSONResponse(resp, &history))
	require.Len(t, history.StatusChanges, 2)
	assert.Equal(t, "voided", history.StatusChanges[1].ToStatus)

	t.Log("Step 5: A voided card rejects redemption")
	resp, err = postJSON("/api/cards/redeem", map[string]string{
		"card_number": issued.Card.CardNumber,
		"pin":         issued.PIN,
		"amount":      "1",
	})
	require.NoError(t, err)
	var errResp map[string]string
	require.NoError(t, readJSONResponse(resp, &errResp))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "card is voided", errResp["error"])
}

// TestE2E_SuspendReactivateFlow suspends a card, shows that it cannot be
// spent, then reactivates it.
func TestE2E_SuspendReactivateFlow(t *testing.T) {
	cleanupTables(t)

	brand := createBrand(t, "Bookshop")
	issued := issueCard(t, brand.ID, "50")

	resp, err := postJSON("/api/admin/cards/"+issued.Card.ID+"/status", map[string]string{"status": "suspended"})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = postJSON("/api/cards/redeem", map[string]string{
		"card_number": issued.Card.CardNumber,
		"pin":         issued.PIN,
		"amount":      "10",
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = postJSON("/api/admin/cards/"+issued.Card.ID+"/status", map[string]string{"status": "active"})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = postJSON("/api/cards/redeem", map[string]string{
		"card_number": issued.Card.CardNumber,
		"pin":         issued.PIN,
		"amount":      "50",
	})
	require.NoError(t, err)
	var redeemed struct {
		Status string `json:"status"`
	}
	require.NoError(t, readJSONResponse(resp, &redeemed))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "depleted", redeemed.Status)

	resp, err = postJSON("/api/admin/cards/"+issued.Card.ID+"/status", map[string]string{"status": "active"})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "a depleted card cannot be reactivated")
}

// TestE2E_AdjustAndRefund covers the corrective flows and the ceiling at
// the initial balance.
func TestE2E_AdjustAndRefund(t *testing.T) {
	cleanupTables(t)

	brand := createBrand(t, "Cinema")
	issued := issueCard(t, brand.ID, "80")
	path := "/api/admin/cards/" + issued.Card.ID

	resp, err := postJSON(path+"/adjust", map[string]any{"amount": "-30", "reason": "chargeback"})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = postJSON(path+"/refund", map[string]any{"amount": "40", "reference_id": "ORD-1"})
	require.NoError(t, err)
	var errResp map[string]string
	require.NoError(t, readJSONResponse(resp, &errResp))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "refund above the initial balance")
	assert.Contains(t, errResp["error"], "initial balance")

	resp, err = postJSON(path+"/refund", map[string]any{"amount": "30", "reference_id": "ORD-1"})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	balance, status, entries := getCardFromDB(t, issued.Card.ID)
	assert.True(t, balance.Equal(decimal.RequireFromString("80")))
	assert.Equal(t, "active", status)
	assert.Equal(t, 3, entries)
}

// TestE2E_BrandRemoval deactivates a brand with live cards and deletes an
// unused one.
func TestE2E_BrandRemoval(t *testing.T) {
	cleanupTables(t)

	used := createBrand(t, "Used Brand")
	issueCard(t, used.ID, "20")
	unused := createBrand(t, "Unused Brand")

	for _, tc := range []struct {
		brand brandResponse
		want  string
	}{
		{used, "deactivated"},
		{unused, "deleted"},
	} {
		resp, err := doJSON(http.MethodDelete, "/api/admin/brands/"+tc.brand.ID, nil)
		require.NoError(t, err)
		var result map[string]string
		require.NoError(t, readJSONResponse(resp, &result))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, tc.want, result["result"], tc.brand.Name)
	}

	resp, err := getJSON("/api/brands")
	require.NoError(t, err)
	var listed struct {
		Brands []brandResponse `json:"brands"`
	}
	require.NoError(t, readJSONResponse(resp, &listed))
	assert.Empty(t, listed.Brands, "inactive brands are hidden by default")

	resp, err = getJSON("/api/brands?include_inactive=true")
	require.NoError(t, err)
	require.NoError(t, readJSONResponse(resp, &listed))
	require.Len(t, listed.Brands, 1)
	assert.False(t, listed.Brands[0].IsActive)
}

// TestE2E_ValidationErrors verifies the error body of rejected requests.
func TestE2E_ValidationErrors(t *testing.T) {
	cleanupTables(t)

	brand := createBrand(t, "Florist")
	issued := issueCard(t, brand.ID, "25")

	tests := []struct {
		name       string
		path       string
		body       map[string]any
		wantStatus int
		wantError  string
	}{
		{"missing identifier", "/api/cards/lookup", map[string]any{}, http.StatusBadRequest, "invalid request: card_number or code is required"},
		{"short pin", "/api/cards/balance", map[string]any{"card_number": issued.Card.CardNumber, "pin": "12"}, http.StatusBadRequest, "invalid request: pin must be 4 digits"},
		{"unknown card", "/api/cards/balance", map[string]any{"card_number": "ZZZZZZZZZZZZZZZZ", "pin": "1234"}, http.StatusNotFound, "not found: card not found"},
		{"amount out of range", "/api/admin/cards", map[string]any{"brand_id": brand.ID, "amount": "1000"}, http.StatusBadRequest, "validation failed: amount outside brand limits"},
		{"duplicate brand", "/api/admin/brands", map[string]any{"name": "FLORIST", "min_amount": 5, "max_amount": 50, "expiry_months": 6}, http.StatusConflict, "conflict: brand with this name already exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := postJSON(tt.path, tt.body)
			require.NoError(t, err)
			var errResp map[string]string
			require.NoError(t, readJSONResponse(resp, &errResp))
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Contains(t, errResp["error"], tt.wantError)
		})
	}
}

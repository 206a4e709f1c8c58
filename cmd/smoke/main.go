// Command smoke exercises the full engine in-process: propagation,
// reconciliation and repair, failing loudly when any invariant breaks.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"lekha.app/internal/audit"
	"lekha.app/internal/ledger"
	"lekha.app/internal/money"
)

func main() {
	ctx := context.Background()
	svc := ledger.NewInMemory(&audit.Memory{})
	const owner = "smoke-user"

	till, err := svc.CreateAccount(ctx, ledger.Account{
		OwnerID: owner, Name: "Till", Type: ledger.AccountCash, InitialBalance: 10_000,
	})
	if err != nil {
		log.Fatalf("create till: %v", err)
	}
	bank, err := svc.CreateAccount(ctx, ledger.Account{
		OwnerID: owner, Name: "Bank", Type: ledger.AccountBank,
	})
	if err != nil {
		log.Fatalf("create bank: %v", err)
	}
	supplier, err := svc.CreateAccount(ctx, ledger.Account{
		OwnerID: owner, Name: "Supplier", Type: ledger.AccountOther,
	})
	if err != nil {
		log.Fatalf("create supplier: %v", err)
	}

	day := time.Now().UTC()

	// Internal transfer: till down, bank up by the same amount.
	if _, err := svc.CreateEntry(ctx, ledger.Entry{
		OwnerID: owner, Direction: ledger.MoneyOut, Amount: 4_200,
		Category: "Transfer", Description: "bank deposit", Date: day,
		AccountID: till.ID, LinkedAccountID: bank.ID,
	}); err != nil {
		log.Fatalf("transfer: %v", err)
	}
	mustBalance(ctx, svc, owner, till.ID, 5_800)
	mustBalance(ctx, svc, owner, bank.ID, 4_200)

	// External settlement: both sides move the same direction.
	if _, err := svc.CreateEntry(ctx, ledger.Entry{
		OwnerID: owner, Direction: ledger.MoneyOut, Amount: 1_300,
		Category: "Supplies", Description: "stock purchase", Date: day,
		AccountID: till.ID, LinkedAccountID: supplier.ID,
	}); err != nil {
		log.Fatalf("settlement: %v", err)
	}
	mustBalance(ctx, svc, owner, till.ID, 4_500)
	mustBalance(ctx, svc, owner, supplier.ID, -1_300)

	// Cash check with auto adjustment lands the balance on the count.
	check, err := svc.SubmitCashCheck(ctx, ledger.CheckRequest{
		OwnerID: owner, AccountID: till.ID, Day: day,
		ActualBalance: 4_400, AutoAdjust: true,
	})
	if err != nil {
		log.Fatalf("cash check: %v", err)
	}
	if check.Status != ledger.CheckShort || check.AdjustmentEntryID == "" {
		log.Fatalf("unexpected check: %+v", check)
	}
	mustBalance(ctx, svc, owner, till.ID, 4_400)

	// The auditor agrees with the incremental balances.
	for _, id := range []string{till.ID, bank.ID, supplier.ID} {
		res, err := svc.RecomputeAndRepair(ctx, owner, id)
		if err != nil {
			log.Fatalf("repair %s: %v", id, err)
		}
		if res.Drift != 0 {
			log.Fatalf("account %s drifted by %s", id, res.Drift)
		}
	}

	fmt.Println("smoke test passed")
}

func mustBalance(ctx context.Context, svc ledger.Service, owner, id string, want money.Amount) {
	acc, err := svc.GetAccount(ctx, owner, id)
	if err != nil {
		log.Fatalf("get %s: %v", id, err)
	}
	if acc.Balance != want {
		log.Fatalf("account %s: balance %d, want %d", id, acc.Balance, want)
	}
}

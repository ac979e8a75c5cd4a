package ledger

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"github.com/vitewallet/ledger/internal/types"
)

func tx(source, dest uuid.UUID, amount int64, state types.TxState) types.Transaction {
	return types.Transaction{
		TRID:        uuid.New(),
		Source:      source,
		Destination: dest,
		Amount:      amount,
		Currency:    "KES",
		Type:        types.TypeTransfer,
		State:       state,
	}
}

func TestComputeKnownSet(t *testing.T) {
	w1 := uuid.New()
	w2 := uuid.New()

	txs := []types.Transaction{
		tx(w1, w2, 600, types.StatePending),     // reserved debit
		tx(w1, w2, 100, types.StateCompleted),   // settled debit
		tx(w2, w1, 250, types.StateCompleted),   // settled credit
		tx(w2, w1, 300, types.StateInProgress),  // uncleared credit
		tx(w1, w2, 50, types.StateFailed),       // failed, counts nowhere
	}
	topups := []types.Topup{
		{WalletID: w1, Amount: 1000, Currency: "KES"},
	}

	b := Compute(w1, txs, topups)

	// available: 1000 + 250 - 600 - 100
	if b.Available != 550 {
		t.Errorf("available = %d, want 550", b.Available)
	}

	// actual: 1000 + 250 + 300 - 100
	if b.Actual != 1450 {
		t.Errorf("actual = %d, want 1450", b.Actual)
	}

	if b.Reserved != 600 {
		t.Errorf("reserved = %d, want 600", b.Reserved)
	}

	if b.Uncleared != 300 {
		t.Errorf("uncleared = %d, want 300", b.Uncleared)
	}
}

func TestComputeIgnoresForeignRows(t *testing.T) {
	w1 := uuid.New()
	w2 := uuid.New()
	w3 := uuid.New()

	txs := []types.Transaction{
		tx(w2, w3, 999, types.StateCompleted),
	}
	topups := []types.Topup{
		{WalletID: w2, Amount: 500},
	}

	if b := Compute(w1, txs, topups); b != (Balances{}) {
		t.Errorf("foreign rows leaked into balances: %+v", b)
	}
}

func TestReversalPairCancelsOut(t *testing.T) {
	w1 := uuid.New()
	w2 := uuid.New()

	// A settled payment and its reversal. Both legs count as "reversed" on
	// both sides of the formulas, so the pair must be a net zero.
	txs := []types.Transaction{
		tx(w1, w2, 400, types.StateReversed),
		tx(w2, w1, 400, types.StateReversed),
	}

	b := Compute(w1, txs, nil)
	if b.Available != 0 || b.Actual != 0 {
		t.Errorf("reversal pair not neutral: %+v", b)
	}
}

// TestBalanceReconciliation generates random transaction sets and asserts the
// identities that tie the four views together:
//
//	actual - available == uncleared(in_progress part) + reserved(pending part)
//	reserved           == outgoing pending + outgoing in_progress
//	uncleared          == incoming pending + incoming in_progress
func TestBalanceReconciliation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	states := []types.TxState{
		types.StatePending, types.StateInProgress, types.StateCompleted,
		types.StateFailed, types.StateReversed,
	}

	for round := 0; round < 200; round++ {
		wallet := uuid.New()
		other := uuid.New()

		var txs []types.Transaction
		var topups []types.Topup

		var inPending, inProgress, outPending, outProgress int64

		for i := 0; i < rng.Intn(40); i++ {
			amount := int64(rng.Intn(10_000) + 1)
			state := states[rng.Intn(len(states))]

			if rng.Intn(2) == 0 {
				txs = append(txs, tx(wallet, other, amount, state))
				switch state {
				case types.StatePending:
					outPending += amount
				case types.StateInProgress:
					outProgress += amount
				}
			} else {
				txs = append(txs, tx(other, wallet, amount, state))
				switch state {
				case types.StatePending:
					inPending += amount
				case types.StateInProgress:
					inProgress += amount
				}
			}
		}

		for i := 0; i < rng.Intn(5); i++ {
			topups = append(topups, types.Topup{
				WalletID: wallet,
				Amount:   int64(rng.Intn(50_000)),
			})
		}

		b := Compute(wallet, txs, topups)

		if diff := b.Actual - b.Available; diff != inProgress+outPending {
			t.Fatalf("round %d: actual-available = %d, want %d",
				round, diff, inProgress+outPending)
		}

		if b.Reserved != outPending+outProgress {
			t.Fatalf("round %d: reserved = %d, want %d",
				round, b.Reserved, outPending+outProgress)
		}

		if b.Uncleared != inPending+inProgress {
			t.Fatalf("round %d: uncleared = %d, want %d",
				round, b.Uncleared, inPending+inProgress)
		}
	}
}

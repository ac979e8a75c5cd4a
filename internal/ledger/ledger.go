// Package ledger derives wallet balances by folding over the transaction log.
// Nothing in here touches storage or caches a result: callers hand in one
// consistent snapshot of every transaction touching a wallet plus its top-ups,
// and get the four balance views back.
//
// Canonical formulas (the source system disagreed with itself across
// revisions; these are the ones this implementation commits to):
//
//	available = in(completed, reversed) + topups - out(pending, in_progress, completed, reversed)
//	actual    = in(completed, in_progress, reversed) + topups - out(in_progress, completed, reversed)
//	reserved  = out(pending, in_progress)
//	uncleared = in(pending, in_progress)
//
// Outgoing money is reserved the moment it is pending, so two concurrent
// debits can never both spend the same funds. Incoming money is not spendable
// until settled.
package ledger

import (
	"github.com/google/uuid"

	"github.com/vitewallet/ledger/internal/types"
)

// Balances is the derived view of one wallet at one snapshot.
type Balances struct {
	Available int64 `json:"available"`
	Actual    int64 `json:"actual"`
	Reserved  int64 `json:"reserved"`
	Uncleared int64 `json:"uncleared"`
}

var availableIn = stateSet(types.StateCompleted, types.StateReversed)
var availableOut = stateSet(types.StatePending, types.StateInProgress,
	types.StateCompleted, types.StateReversed)
var actualIn = stateSet(types.StateCompleted, types.StateInProgress,
	types.StateReversed)
var actualOut = stateSet(types.StateInProgress, types.StateCompleted,
	types.StateReversed)
var reservedOut = stateSet(types.StatePending, types.StateInProgress)
var unclearedIn = stateSet(types.StatePending, types.StateInProgress)

func stateSet(states ...types.TxState) map[types.TxState]bool {
	set := make(map[types.TxState]bool, len(states))
	for _, s := range states {
		set[s] = true
	}

	return set
}

// Compute folds the snapshot into the four balance views for walletID.
// Transactions not touching the wallet are ignored, so callers may pass a
// wider set than strictly necessary.
func Compute(walletID uuid.UUID, txs []types.Transaction, topups []types.Topup) Balances {
	var b Balances

	for _, topup := range topups {
		if topup.WalletID != walletID {
			continue
		}

		b.Available += topup.Amount
		b.Actual += topup.Amount
	}

	for _, tx := range txs {
		if tx.Incoming(walletID) {
			if availableIn[tx.State] {
				b.Available += tx.Amount
			}
			if actualIn[tx.State] {
				b.Actual += tx.Amount
			}
			if unclearedIn[tx.State] {
				b.Uncleared += tx.Amount
			}
		}

		if tx.Outgoing(walletID) {
			if availableOut[tx.State] {
				b.Available -= tx.Amount
			}
			if actualOut[tx.State] {
				b.Actual -= tx.Amount
			}
			if reservedOut[tx.State] {
				b.Reserved += tx.Amount
			}
		}
	}

	return b
}

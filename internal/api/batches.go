package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/vitewallet/ledger/internal/batch"
	lederr "github.com/vitewallet/ledger/internal/errors"
	"github.com/vitewallet/ledger/internal/transaction"
	"github.com/vitewallet/ledger/internal/types"
)

type createBatchRequest struct {
	DebitParty   string                     `json:"debitParty"`
	Title        string                     `json:"title"`
	Transactions []createTransactionRequest `json:"transactions"`
}

type batchItemView struct {
	Index       int                `json:"index"`
	Transaction *types.Transaction `json:"transaction,omitempty"`
	Error       *ErrorResponse     `json:"error,omitempty"`
}

type batchView struct {
	Batch   *types.BatchTransaction `json:"batch"`
	Results []batchItemView         `json:"results"`
}

// CreateBatchHandler accepts a batch of transaction requests. Members that
// fail are reported in their result slot; the rest of the batch goes through.
func (s *Server) CreateBatchHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	var req createBatchRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, nil, &lederr.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	defer r.Body.Close()

	merchant, err := s.txs.WalletByMSISDN(r.Context(), req.DebitParty)
	if err != nil {
		return 0, nil, err
	}

	// Members whose parties don't resolve still occupy their slot: the nil
	// party ids make the service reject exactly that member, and the
	// resolution error is reported on the item.
	requests := make([]transaction.CreateRequest, len(req.Transactions))
	resolveErrs := make([]error, len(req.Transactions))
	touched := []uuid.UUID{merchant.ID}
	for i, member := range req.Transactions {
		resolved, err := s.resolve(r, &member)
		if err != nil {
			resolveErrs[i] = err
			requests[i] = transaction.CreateRequest{
				Amount:   member.Amount,
				Currency: member.Currency,
				Type:     types.TxType(member.Type),
			}
			continue
		}

		requests[i] = resolved
		touched = append(touched, resolved.Source, resolved.Destination)
	}

	b, results, err := s.batches.CreateBatch(r.Context(), merchant.ID, req.Title, requests)
	if err != nil {
		return 0, nil, err
	}

	s.invalidateBalances(r, touched...)

	views := make([]batchItemView, len(results))
	for i, result := range results {
		views[i] = batchItemView{Index: result.Index, Transaction: result.Transaction}

		itemErr := result.Err
		if resolveErrs[i] != nil {
			itemErr = resolveErrs[i]
		}
		if itemErr != nil {
			_, envelope := errorEnvelope(itemErr)
			views[i].Error = envelope
		}
	}

	return http.StatusCreated, batchView{Batch: b, Results: views}, nil
}

func (s *Server) BatchStatusHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	batchTRID, err := parseUUID(r.PathValue("batchTrid"))
	if err != nil {
		return 0, nil, err
	}

	filter := batch.Filter(r.URL.Query().Get("filter"))

	status, err := s.batches.GetBatchStatus(r.Context(), batchTRID, filter)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, status, nil
}

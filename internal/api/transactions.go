package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	lederr "github.com/vitewallet/ledger/internal/errors"
	"github.com/vitewallet/ledger/internal/transaction"
	"github.com/vitewallet/ledger/internal/types"
)

func parseUUID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, lederr.ErrMalformedIdentifier
	}

	return id, nil
}

type createTransactionRequest struct {
	DebitParty          string `json:"debitParty"`
	CreditParty         string `json:"creditParty"`
	Amount              int64  `json:"amount"`
	Currency            string `json:"currency"`
	Type                string `json:"type"`
	ServerCorrelationID string `json:"serverCorrelationId,omitempty"`
	CallbackURL         string `json:"callbackUrl,omitempty"`
	Description         string `json:"description,omitempty"`
}

// resolve turns the request's party identifiers into a service-level request.
func (s *Server) resolve(r *http.Request, req *createTransactionRequest) (transaction.CreateRequest, error) {
	var out transaction.CreateRequest

	debit, err := s.txs.WalletByMSISDN(r.Context(), req.DebitParty)
	if err != nil {
		return out, err
	}

	credit, err := s.txs.WalletByMSISDN(r.Context(), req.CreditParty)
	if err != nil {
		return out, err
	}

	correlationID := uuid.Nil
	if req.ServerCorrelationID != "" {
		correlationID, err = parseUUID(req.ServerCorrelationID)
		if err != nil {
			return out, err
		}
	}

	out = transaction.CreateRequest{
		Source:        debit.ID,
		Destination:   credit.ID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Type:          types.TxType(req.Type),
		CorrelationID: correlationID,
		CallbackURL:   req.CallbackURL,
		Description:   req.Description,
	}

	return out, nil
}

// CreateTransactionHandler accepts a transaction for asynchronous processing.
// The 202 response carries the pending transaction; settlement happens on the
// advance queue.
func (s *Server) CreateTransactionHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	var req createTransactionRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, nil, &lederr.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	defer r.Body.Close()

	serviceReq, err := s.resolve(r, &req)
	if err != nil {
		return 0, nil, err
	}

	tx, err := s.txs.CreateTransaction(r.Context(), serviceReq)
	if err != nil {
		return 0, nil, err
	}

	s.invalidateBalances(r, tx.Source, tx.Destination)

	return http.StatusAccepted, tx, nil
}

func (s *Server) GetTransactionHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	trid, err := parseUUID(r.PathValue("trid"))
	if err != nil {
		return 0, nil, err
	}

	tx, err := s.txs.GetByReference(r.Context(), trid)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, tx, nil
}

type confirmRequest struct {
	PINVerified bool `json:"pinVerified"`
}

func (s *Server) ConfirmTransactionHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	trid, err := parseUUID(r.PathValue("trid"))
	if err != nil {
		return 0, nil, err
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, nil, &lederr.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	defer r.Body.Close()

	tx, err := s.txs.ConfirmTransaction(r.Context(), trid, req.PINVerified)
	if err != nil {
		return 0, nil, err
	}

	s.invalidateBalances(r, tx.Source, tx.Destination)

	return http.StatusOK, tx, nil
}

func (s *Server) ReverseTransactionHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	trid, err := parseUUID(r.PathValue("trid"))
	if err != nil {
		return 0, nil, err
	}

	tx, err := s.txs.ReverseTransaction(r.Context(), trid)
	if err != nil {
		return 0, nil, err
	}

	s.invalidateBalances(r, tx.Source, tx.Destination)

	return http.StatusOK, tx, nil
}

// requestState is the async request status view: clients poll it with the
// serverCorrelationId they supplied at creation.
type requestState struct {
	ServerCorrelationID uuid.UUID     `json:"serverCorrelationId"`
	Status              types.TxState `json:"status"`
	ObjectReference     uuid.UUID     `json:"objectReference"`
}

func (s *Server) RequestStateHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	correlationID, err := parseUUID(r.PathValue("serverCorrelationId"))
	if err != nil {
		return 0, nil, err
	}

	tx, err := s.txs.GetByCorrelationID(r.Context(), correlationID)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, requestState{
		ServerCorrelationID: tx.ServerCorrelationID,
		Status:              tx.State,
		ObjectReference:     tx.TRID,
	}, nil
}

func (s *Server) StatementEntryHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	trid, err := parseUUID(r.PathValue("trid"))
	if err != nil {
		return 0, nil, err
	}

	entry, err := s.txs.Statement(r.Context(), trid)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, entry, nil
}

func (s *Server) invalidateBalances(r *http.Request, walletIDs ...uuid.UUID) {
	if s.cache == nil {
		return
	}

	s.cache.InvalidateBalances(r.Context(), walletIDs...)
}

package api

import (
	"encoding/json"
	"net/http"

	lederr "github.com/vitewallet/ledger/internal/errors"
	"github.com/vitewallet/ledger/internal/ledger"
	"github.com/vitewallet/ledger/internal/types"
)

type accountStatus struct {
	AccountStatus types.WalletStatus `json:"accountStatus"`
	AccountType   types.WalletType   `json:"accountType"`
}

func (s *Server) AccountStatusHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	wallet, err := s.txs.WalletByMSISDN(r.Context(), r.PathValue("msisdn"))
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, accountStatus{
		AccountStatus: wallet.Status,
		AccountType:   wallet.Type,
	}, nil
}

type accountName struct {
	Name string `json:"name"`
}

func (s *Server) AccountNameHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	wallet, err := s.txs.WalletByMSISDN(r.Context(), r.PathValue("msisdn"))
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, accountName{Name: wallet.Name}, nil
}

// AccountBalanceHandler serves the derived balances, read through the cache.
// The cached copy is display-only and is dropped whenever money moves.
func (s *Server) AccountBalanceHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	wallet, err := s.txs.WalletByMSISDN(r.Context(), r.PathValue("msisdn"))
	if err != nil {
		return 0, nil, err
	}

	var balances ledger.Balances
	if s.cache != nil {
		hit, err := s.cache.GetBalances(r.Context(), wallet.ID, &balances)
		if err == nil && hit {
			return http.StatusOK, balances, nil
		}
	}

	balances, err = s.txs.Balances(r.Context(), wallet.ID)
	if err != nil {
		return 0, nil, err
	}

	if s.cache != nil {
		s.cache.SetBalances(r.Context(), wallet.ID, balances)
	}

	return http.StatusOK, balances, nil
}

type depositRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (s *Server) DepositHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	wallet, err := s.txs.WalletByMSISDN(r.Context(), r.PathValue("msisdn"))
	if err != nil {
		return 0, nil, err
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, nil, &lederr.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	defer r.Body.Close()

	topup, err := s.txs.Deposit(r.Context(), wallet.ID, req.Amount, req.Currency)
	if err != nil {
		return 0, nil, err
	}

	s.invalidateBalances(r, wallet.ID)

	return http.StatusCreated, topup, nil
}

func (s *Server) AccountBillsHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	wallet, err := s.txs.WalletByMSISDN(r.Context(), r.PathValue("msisdn"))
	if err != nil {
		return 0, nil, err
	}

	statuses, err := s.bills.OutstandingBills(r.Context(), wallet.ID)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, statuses, nil
}

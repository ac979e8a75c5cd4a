package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vitewallet/ledger/internal/bill"
	lederr "github.com/vitewallet/ledger/internal/errors"
	"github.com/vitewallet/ledger/internal/mandate"
	"github.com/vitewallet/ledger/internal/types"
)

type createBillRequest struct {
	Biller       string    `json:"biller"`
	Billee       string    `json:"billee"`
	Currency     string    `json:"currency"`
	AmountDue    int64     `json:"amountDue"`
	MinAmountDue int64     `json:"minAmountDue"`
	DueDate      time.Time `json:"dueDate"`
	Description  string    `json:"billDescription,omitempty"`
}

func (s *Server) CreateBillHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	var req createBillRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, nil, &lederr.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	defer r.Body.Close()

	biller, err := s.txs.WalletByMSISDN(r.Context(), req.Biller)
	if err != nil {
		return 0, nil, err
	}

	billee, err := s.txs.WalletByMSISDN(r.Context(), req.Billee)
	if err != nil {
		return 0, nil, err
	}

	b, err := s.bills.CreateBill(r.Context(), bill.CreateRequest{
		Biller:       biller.ID,
		Billee:       billee.ID,
		Currency:     req.Currency,
		AmountDue:    req.AmountDue,
		MinAmountDue: req.MinAmountDue,
		DueDate:      req.DueDate,
		Description:  req.Description,
	})
	if err != nil {
		return 0, nil, err
	}

	return http.StatusCreated, b, nil
}

func (s *Server) GetBillHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	billRef, err := parseUUID(r.PathValue("billRef"))
	if err != nil {
		return 0, nil, err
	}

	status, err := s.bills.GetBill(r.Context(), billRef)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, status, nil
}

type payBillRequest struct {
	Amount              int64  `json:"amount,omitempty"`
	ServerCorrelationID string `json:"serverCorrelationId,omitempty"`
}

// PayBillHandler places a billpay transaction for the bill. A zero amount
// pays the full amount due.
func (s *Server) PayBillHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	billRef, err := parseUUID(r.PathValue("billRef"))
	if err != nil {
		return 0, nil, err
	}

	var req payBillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, nil, &lederr.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	defer r.Body.Close()

	correlationID := uuid.Nil
	if req.ServerCorrelationID != "" {
		correlationID, err = parseUUID(req.ServerCorrelationID)
		if err != nil {
			return 0, nil, err
		}
	}

	tx, err := s.bills.PayBill(r.Context(), billRef, req.Amount, correlationID)
	if err != nil {
		return 0, nil, err
	}

	s.invalidateBalances(r, tx.Source, tx.Destination)

	return http.StatusAccepted, tx, nil
}

type createMandateRequest struct {
	Payer            string                 `json:"payer"`
	Payee            string                 `json:"payee"`
	Currency         string                 `json:"currency"`
	AmountLimit      int64                  `json:"amountLimit"`
	StartDate        time.Time              `json:"startDate"`
	EndDate          time.Time              `json:"endDate"`
	NumberOfPayments int                    `json:"numberOfPayments"`
	Frequency        types.MandateFrequency `json:"frequencyType"`
}

func (s *Server) CreateMandateHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	var req createMandateRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, nil, &lederr.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	defer r.Body.Close()

	payer, err := s.txs.WalletByMSISDN(r.Context(), req.Payer)
	if err != nil {
		return 0, nil, err
	}

	payee, err := s.txs.WalletByMSISDN(r.Context(), req.Payee)
	if err != nil {
		return 0, nil, err
	}

	m, err := s.mandates.CreateMandate(r.Context(), mandate.CreateRequest{
		Payer:            payer.ID,
		Payee:            payee.ID,
		Currency:         req.Currency,
		AmountLimit:      req.AmountLimit,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		NumberOfPayments: req.NumberOfPayments,
		Frequency:        req.Frequency,
	})
	if err != nil {
		return 0, nil, err
	}

	return http.StatusCreated, m, nil
}

func (s *Server) GetMandateHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	ref, err := parseUUID(r.PathValue("mandateReference"))
	if err != nil {
		return 0, nil, err
	}

	m, err := s.mandates.GetMandate(r.Context(), ref)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, m, nil
}

func (s *Server) CancelMandateHandler(w http.ResponseWriter, r *http.Request) (int, interface{}, error) {
	ref, err := parseUUID(r.PathValue("mandateReference"))
	if err != nil {
		return 0, nil, err
	}

	m, err := s.mandates.CancelMandate(r.Context(), ref)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, m, nil
}

// Package service connects invoices to the online payment gateway: residents
// get a payment link, the gateway's callback settles the invoice.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"condoku_backend/internals/features/billing/billerr"
	"condoku_backend/internals/features/billing/invoices/model"
)

type Ledger interface {
	Get(ctx context.Context, id string) (*model.Invoice, error)
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (*model.Invoice, error)
}

type Customer struct {
	Name  string
	Email string
}

type PaymentLink struct {
	InvoiceID   string `json:"invoice_id"`
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

type Outcome string

const (
	OutcomePaid        Outcome = "paid"
	OutcomeAlreadyPaid Outcome = "already_paid"
	OutcomeIgnored     Outcome = "ignored" // not settled yet, or failed at the gateway
)

type NotificationResult struct {
	OrderID       string         `json:"order_id"`
	InvoiceID     string         `json:"invoice_id"`
	GatewayStatus string         `json:"gateway_status"`
	Outcome       Outcome        `json:"outcome"`
	Invoice       *model.Invoice `json:"-"`
}

type Service struct {
	ledger  Ledger
	gateway Gateway
	now     func() time.Time
	log     zerolog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }

// NewService with a nil gateway gives a service whose every call reports
// billerr.ErrPaymentsDisabled.
func NewService(l Ledger, gw Gateway, opts ...Option) *Service {
	s := &Service{
		ledger:  l,
		gateway: gw,
		now:     time.Now,
		log:     log.With().Str("component", "payments").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Enabled() bool { return s.gateway != nil }

// OrderID is unique per attempt so an invoice can be retried at the gateway.
func OrderID(invoiceID string, at time.Time) string {
	return invoiceID + "~" + strconv.FormatInt(at.Unix(), 10)
}

func InvoiceIDFromOrder(orderID string) (string, error) {
	i := strings.LastIndex(orderID, "~")
	if i <= 0 {
		return "", billerr.Invalid("order_id", "%q is not an invoice order", orderID)
	}
	if _, err := strconv.ParseInt(orderID[i+1:], 10, 64); err != nil {
		return "", billerr.Invalid("order_id", "%q is not an invoice order", orderID)
	}
	return orderID[:i], nil
}

// CreatePaymentLink opens a gateway transaction for the invoice total.
// apartmentCode, when set, must own the invoice; otherwise it is not found.
func (s *Service) CreatePaymentLink(ctx context.Context, invoiceID, apartmentCode string, cust Customer) (*PaymentLink, error) {
	if !s.Enabled() {
		return nil, billerr.ErrPaymentsDisabled
	}
	inv, err := s.ledger.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if apartmentCode != "" && !strings.EqualFold(inv.InvoiceApartmentCode, apartmentCode) {
		return nil, fmt.Errorf("invoice %s: %w", invoiceID, billerr.ErrNotFound)
	}
	if inv.InvoiceStatus == model.InvoiceStatusPaid {
		return nil, fmt.Errorf("invoice %s: %w", invoiceID, billerr.ErrInvoiceSettled)
	}

	gross := inv.Total().Round(0).IntPart()
	if gross <= 0 {
		return nil, billerr.Invalid("invoice_amount", "nothing to pay on %s", invoiceID)
	}
	orderID := OrderID(inv.InvoiceID, s.now())
	ch, err := s.gateway.CreateTransaction(ctx, ChargeRequest{
		OrderID:     orderID,
		GrossAmount: gross,
		ItemName:    fmt.Sprintf("%s %s", inv.InvoiceFeeCode, inv.InvoiceBillingPeriod),
		Customer:    cust,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("invoice_id", inv.InvoiceID).Str("order_id", orderID).Int64("gross", gross).Msg("payment link created")
	return &PaymentLink{
		InvoiceID:   inv.InvoiceID,
		OrderID:     orderID,
		GrossAmount: gross,
		Token:       ch.Token,
		RedirectURL: ch.RedirectURL,
	}, nil
}

// HandleNotification never trusts the callback body: the status is re-read
// from the gateway before anything is settled. Replays are acknowledged.
func (s *Service) HandleNotification(ctx context.Context, orderID string) (*NotificationResult, error) {
	if !s.Enabled() {
		return nil, billerr.ErrPaymentsDisabled
	}
	invoiceID, err := InvoiceIDFromOrder(orderID)
	if err != nil {
		return nil, err
	}
	st, err := s.gateway.CheckTransaction(ctx, orderID)
	if err != nil {
		return nil, err
	}

	res := &NotificationResult{OrderID: orderID, InvoiceID: invoiceID, GatewayStatus: st.TransactionStatus}
	if !st.Settled() {
		res.Outcome = OutcomeIgnored
		s.log.Info().Str("order_id", orderID).Str("status", st.TransactionStatus).Str("fraud", st.FraudStatus).Msg("payment not settled")
		return res, nil
	}

	paidAt := st.SettledAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	inv, err := s.ledger.MarkPaid(ctx, invoiceID, paidAt)
	switch {
	case err == nil:
		res.Outcome = OutcomePaid
	case errors.Is(err, billerr.ErrInvalidTransition) && inv != nil && inv.InvoiceStatus == model.InvoiceStatusPaid:
		res.Outcome = OutcomeAlreadyPaid
	default:
		return nil, err
	}
	res.Invoice = inv

	if gross, ok := grossAmount(st.GrossAmount); ok && gross < inv.Total().Round(0).IntPart() {
		s.log.Warn().Str("invoice_id", invoiceID).Int64("gross", gross).Str("total", inv.Total().String()).Msg("settled below invoice total")
	}
	s.log.Info().Str("invoice_id", invoiceID).Str("order_id", orderID).Str("outcome", string(res.Outcome)).Msg("payment notification handled")
	return res, nil
}

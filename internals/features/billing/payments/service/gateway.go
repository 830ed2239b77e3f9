package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
)

// Gateway is the payment provider boundary.
type Gateway interface {
	CreateTransaction(ctx context.Context, req ChargeRequest) (*Charge, error)
	CheckTransaction(ctx context.Context, orderID string) (*TransactionStatus, error)
}

type ChargeRequest struct {
	OrderID     string
	GrossAmount int64
	ItemName    string
	Customer    Customer
}

type Charge struct {
	Token       string
	RedirectURL string
}

type TransactionStatus struct {
	OrderID           string
	TransactionStatus string
	FraudStatus       string
	PaymentType       string
	GrossAmount       string
	SettledAt         time.Time
}

// Settled: settlement, or a card capture the fraud check accepted.
func (s TransactionStatus) Settled() bool {
	switch strings.ToLower(s.TransactionStatus) {
	case "settlement":
		return true
	case "capture":
		f := strings.ToLower(s.FraudStatus)
		return f == "" || f == "accept"
	}
	return false
}

/* ===================== Midtrans ===================== */

const midtransTimeLayout = "2006-01-02 15:04:05"

type MidtransGateway struct {
	snap snap.Client
	core coreapi.Client
	loc  *time.Location
}

// NewMidtransGateway: production=false talks to the sandbox. Midtrans reports
// times without a zone; loc is the merchant zone (WIB).
func NewMidtransGateway(serverKey string, production bool, loc *time.Location) *MidtransGateway {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	if loc == nil {
		loc = time.Local
	}
	g := &MidtransGateway{loc: loc}
	g.snap.New(serverKey, env)
	g.core.New(serverKey, env)
	return g
}

func (g *MidtransGateway) CreateTransaction(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sr := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: req.GrossAmount,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:    req.OrderID,
			Name:  req.ItemName,
			Price: req.GrossAmount,
			Qty:   1,
		}},
	}
	if req.Customer.Name != "" || req.Customer.Email != "" {
		sr.CustomerDetail = &midtrans.CustomerDetails{
			FName: req.Customer.Name,
			Email: req.Customer.Email,
		}
	}

	resp, merr := g.snap.CreateTransaction(sr)
	if merr != nil {
		return nil, fmt.Errorf("midtrans snap: %w", merr)
	}
	return &Charge{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

func (g *MidtransGateway) CheckTransaction(ctx context.Context, orderID string) (*TransactionStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, merr := g.core.CheckTransaction(orderID)
	if merr != nil {
		return nil, fmt.Errorf("midtrans status %s: %w", orderID, merr)
	}

	st := &TransactionStatus{
		OrderID:           resp.OrderID,
		TransactionStatus: resp.TransactionStatus,
		FraudStatus:       resp.FraudStatus,
		PaymentType:       resp.PaymentType,
		GrossAmount:       resp.GrossAmount,
	}
	for _, s := range []string{resp.SettlementTime, resp.TransactionTime} {
		if s == "" {
			continue
		}
		if t, err := time.ParseInLocation(midtransTimeLayout, s, g.loc); err == nil {
			st.SettledAt = t
			break
		}
	}
	return st, nil
}

// grossAmount parses Midtrans' "350000.00".
func grossAmount(s string) (int64, bool) {
	whole, _, _ := strings.Cut(strings.TrimSpace(s), ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	return n, err == nil
}

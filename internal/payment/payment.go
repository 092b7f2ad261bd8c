// Package payment is the checkout collaborator used before a reservation is
// stored. Only a sandbox gateway ships with the application; the hosted
// checkout button of the UI talks to the real provider.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Errors returned by gateways.
var (
	ErrInvalidRequest      = errors.New("invalid charge request")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Gateway captures and refunds payments.
type Gateway interface {
	// Charge captures the amount. A declined payment is reported through
	// ChargeResponse.Success, not as an error.
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error)

	// Refund returns a captured payment.
	Refund(ctx context.Context, transactionID string) error

	// Name returns the gateway name.
	Name() string
}

// ChargeRequest represents a charge request.
type ChargeRequest struct {
	OrderID       string
	Amount        float64
	Currency      string
	Description   string
	CustomerEmail string
	Metadata      map[string]string
}

// ChargeResponse represents a charge response.
type ChargeResponse struct {
	Success       bool
	TransactionID string
	Status        string
	FailureReason string
}

// Transaction statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

// SandboxConfig holds configuration for the sandbox gateway.
type SandboxConfig struct {
	// Delay is the simulated processing time.
	Delay time.Duration

	// Decline returns a failure reason for requests that must be declined,
	// or "" to approve. Nil approves everything.
	Decline func(*ChargeRequest) string
}

type transaction struct {
	amount float64
	status string
}

// SandboxGateway approves payments locally without contacting a provider.
type SandboxGateway struct {
	cfg SandboxConfig

	mu           sync.Mutex
	transactions map[string]*transaction
}

// NewSandboxGateway creates a sandbox gateway.
func NewSandboxGateway(cfg SandboxConfig) *SandboxGateway {
	return &SandboxGateway{cfg: cfg, transactions: make(map[string]*transaction)}
}

func (g *SandboxGateway) Name() string { return "sandbox" }

func (g *SandboxGateway) wait(ctx context.Context) error {
	if g.cfg.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(g.cfg.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Charge processes a sandbox charge.
func (g *SandboxGateway) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("charge request is required: %w", ErrInvalidRequest)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount %.2f: %w", req.Amount, ErrInvalidRequest)
	}
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	resp := &ChargeResponse{TransactionID: "sandbox_txn_" + uuid.NewString()[:8]}
	if g.cfg.Decline != nil {
		if reason := g.cfg.Decline(req); reason != "" {
			resp.Status = StatusFailed
			resp.FailureReason = reason
			return resp, nil
		}
	}
	resp.Success = true
	resp.Status = StatusCompleted

	g.mu.Lock()
	g.transactions[resp.TransactionID] = &transaction{amount: req.Amount, status: StatusCompleted}
	g.mu.Unlock()
	return resp, nil
}

// Refund marks a completed sandbox transaction as refunded.
func (g *SandboxGateway) Refund(ctx context.Context, transactionID string) error {
	if transactionID == "" {
		return fmt.Errorf("transaction ID is required: %w", ErrInvalidRequest)
	}
	if err := g.wait(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	txn, ok := g.transactions[transactionID]
	if !ok {
		return fmt.Errorf("%s: %w", transactionID, ErrTransactionNotFound)
	}
	txn.status = StatusRefunded
	return nil
}

// Status returns the status of a sandbox transaction.
func (g *SandboxGateway) Status(transactionID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	txn, ok := g.transactions[transactionID]
	if !ok {
		return "", false
	}
	return txn.status, true
}

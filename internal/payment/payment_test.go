package payment

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandboxGateway_Charge(t *testing.T) {
	g := NewSandboxGateway(SandboxConfig{})
	assert.Equal(t, "sandbox", g.Name())

	resp, err := g.Charge(context.Background(), &ChargeRequest{OrderID: "1", Amount: 50, Currency: "USD"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, StatusCompleted, resp.Status)
	assert.True(t, strings.HasPrefix(resp.TransactionID, "sandbox_txn_"))

	status, ok := g.Status(resp.TransactionID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, status)
}

func TestSandboxGateway_InvalidRequest(t *testing.T) {
	g := NewSandboxGateway(SandboxConfig{})

	_, err := g.Charge(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = g.Charge(context.Background(), &ChargeRequest{Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSandboxGateway_Decline(t *testing.T) {
	g := NewSandboxGateway(SandboxConfig{Decline: func(req *ChargeRequest) string {
		if req.Amount > 100 {
			return "insufficient_funds"
		}
		return ""
	}})

	resp, err := g.Charge(context.Background(), &ChargeRequest{Amount: 500})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, StatusFailed, resp.Status)
	assert.Equal(t, "insufficient_funds", resp.FailureReason)

	_, ok := g.Status(resp.TransactionID)
	assert.False(t, ok)
}

func TestSandboxGateway_Refund(t *testing.T) {
	g := NewSandboxGateway(SandboxConfig{})
	ctx := context.Background()

	resp, err := g.Charge(ctx, &ChargeRequest{Amount: 25})
	require.NoError(t, err)
	require.NoError(t, g.Refund(ctx, resp.TransactionID))

	status, _ := g.Status(resp.TransactionID)
	assert.Equal(t, StatusRefunded, status)

	assert.ErrorIs(t, g.Refund(ctx, "missing"), ErrTransactionNotFound)
	assert.ErrorIs(t, g.Refund(ctx, ""), ErrInvalidRequest)
}

func TestSandboxGateway_DelayHonoursContext(t *testing.T) {
	g := NewSandboxGateway(SandboxConfig{Delay: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.Charge(ctx, &ChargeRequest{Amount: 10})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

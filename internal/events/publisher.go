package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"payment-engine/internal/models"
)

const streamName = "PAYMENT_EVENTS"

// Subjects under the payment.> stream
const (
	SubjectPaymentSettled     = "payment.settled"
	SubjectPaymentFailed      = "payment.failed"
	SubjectRefundCompleted    = "payment.refund.completed"
	SubjectPayoutPaid         = "payment.payout.paid"
	SubjectDiscrepancyFlagged = "payment.reconciliation.flagged"
)

// Publisher emits domain events to JetStream. Publishing is best effort:
// failures are logged, never propagated, because money movement must not
// stall on the event bus.
type Publisher struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *logrus.Entry
}

// NewPublisher connects to NATS and ensures the payment stream exists
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name("payment-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"payment.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		logger.WithError(err).Warn("failed to ensure payment events stream")
	}

	return &Publisher{
		conn:   conn,
		js:     js,
		logger: logger.WithField("component", "events.publisher"),
	}, nil
}

func (p *Publisher) publish(ctx context.Context, subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.WithError(err).WithField("subject", subject).Error("failed to encode event")
		return
	}
	if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		p.logger.WithError(err).WithField("subject", subject).Warn("failed to publish event")
	}
}

// PaymentSettled announces a fully settled payment order
func (p *Publisher) PaymentSettled(ctx context.Context, order *models.PaymentOrder) {
	p.publish(ctx, SubjectPaymentSettled, map[string]interface{}{
		"orderId":          order.ID,
		"payerId":          order.PayerID,
		"recipientId":      order.RecipientID,
		"flow":             order.Flow,
		"amountCents":      order.AmountCents,
		"platformFeeCents": order.PlatformFeeCents,
		"currency":         order.Currency,
		"settledAt":        order.SettledAt,
	})
}

// PaymentFailed announces a failed payment order
func (p *Publisher) PaymentFailed(ctx context.Context, order *models.PaymentOrder) {
	p.publish(ctx, SubjectPaymentFailed, map[string]interface{}{
		"orderId":        order.ID,
		"payerId":        order.PayerID,
		"amountCents":    order.AmountCents,
		"currency":       order.Currency,
		"failureCode":    order.FailureCode,
		"failureMessage": order.FailureMessage,
	})
}

// RefundCompleted announces a completed refund
func (p *Publisher) RefundCompleted(ctx context.Context, refund *models.Refund) {
	p.publish(ctx, SubjectRefundCompleted, map[string]interface{}{
		"refundId":    refund.ID,
		"orderId":     refund.PaymentOrderID,
		"amountCents": refund.AmountCents,
		"currency":    refund.Currency,
		"feeRefunded": refund.FeeRefunded,
		"completedAt": refund.CompletedAt,
	})
}

// PayoutPaid announces a confirmed payout
func (p *Publisher) PayoutPaid(ctx context.Context, payout *models.Payout) {
	p.publish(ctx, SubjectPayoutPaid, map[string]interface{}{
		"payoutId":           payout.ID,
		"orderId":            payout.PaymentOrderID,
		"connectedAccountId": payout.ConnectedAccountID,
		"amountCents":        payout.AmountCents,
		"currency":           payout.Currency,
		"paidAt":             payout.PaidAt,
	})
}

// DiscrepancyFlagged announces a reconciliation finding that needs review
func (p *Publisher) DiscrepancyFlagged(ctx context.Context, d *models.ReconciliationDiscrepancy) {
	p.publish(ctx, SubjectDiscrepancyFlagged, map[string]interface{}{
		"discrepancyId": d.ID,
		"runId":         d.RunID,
		"entityType":    d.EntityType,
		"entityId":      d.EntityID,
		"type":          d.DiscrepancyType,
		"localState":    d.LocalState,
	})
}

// IsConnected reports whether the NATS connection is up
func (p *Publisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// Close drains the connection
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

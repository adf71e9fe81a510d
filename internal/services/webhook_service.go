package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"payment-engine/internal/gateway"
	"payment-engine/internal/models"
)

// ErrInvalidSignature marks a webhook delivery that failed verification
var ErrInvalidSignature = errors.New("invalid webhook signature")

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, models.ErrNotFound)
}

// WebhookHandler processes one verified, persisted webhook event
type WebhookHandler func(ctx context.Context, event *models.WebhookEvent) error

// WebhookService verifies, persists, and dispatches processor webhooks.
// Signature verification happens before anything touches the database;
// the unique processor event id collapses redeliveries onto one row.
type WebhookService struct {
	store        WebhookStore
	processor    gateway.ProcessorAdapter
	orchestrator *PaymentOrchestrator
	payoutSvc    *PayoutService
	refundSvc    *RefundService
	subscription *SubscriptionStrategy
	accounts     AccountStore
	subs         SubscriptionStore
	logger       *logrus.Entry

	handlers map[string]WebhookHandler
}

// NewWebhookService creates the webhook service with its event registry
func NewWebhookService(store WebhookStore, processor gateway.ProcessorAdapter, orchestrator *PaymentOrchestrator, payoutSvc *PayoutService, refundSvc *RefundService, subscription *SubscriptionStrategy, accounts AccountStore, subs SubscriptionStore, logger *logrus.Logger) *WebhookService {
	s := &WebhookService{
		store:        store,
		processor:    processor,
		orchestrator: orchestrator,
		payoutSvc:    payoutSvc,
		refundSvc:    refundSvc,
		subscription: subscription,
		accounts:     accounts,
		subs:         subs,
		logger:       logger.WithField("component", "webhook-service"),
	}
	s.handlers = map[string]WebhookHandler{
		"payment_intent.succeeded":      s.handleIntentSucceeded,
		"payment_intent.payment_failed": s.handleIntentFailed,
		"payment_intent.canceled":       s.handleIntentCanceled,
		"transfer.created":              s.handleTransferCreated,
		"transfer.paid":                 s.handleTransferPaid,
		"transfer.failed":               s.handleTransferFailed,
		"transfer.reversed":             s.handleTransferFailed,
		"charge.refunded":               s.handleChargeRefunded,
		"account.updated":               s.handleAccountUpdated,
		"invoice.paid":                  s.handleInvoicePaid,
		"invoice.payment_failed":        s.handleInvoiceFailed,
		"customer.subscription.updated": s.handleSubscriptionUpdated,
		"customer.subscription.deleted": s.handleSubscriptionDeleted,
	}
	return s
}

// Handlers exposes the registered event types
func (s *WebhookService) Handlers() map[string]WebhookHandler {
	return s.handlers
}

// Ingest verifies the signature, persists the event, and processes it.
// A bad signature returns an error with nothing persisted. A redelivered
// event that already processed is a no-op. Handler failures are recorded
// on the event for retry and do not surface to the caller.
func (s *WebhookService) Ingest(ctx context.Context, payload []byte, signature string) (*models.WebhookEvent, error) {
	verified, err := s.processor.VerifyWebhook(payload, signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event := &models.WebhookEvent{
		ProcessorEventID: verified.EventID,
		EventType:        verified.EventType,
		Payload:          models.JSONB(verified.Payload),
		State:            models.WebhookReceived,
	}
	event, created, err := s.store.GetOrCreate(ctx, event)
	if err != nil {
		return nil, err
	}
	if !created && event.State == models.WebhookProcessed {
		s.logger.WithField("event_id", event.ProcessorEventID).Debug("duplicate delivery, already processed")
		return event, nil
	}

	if perr := s.ProcessEvent(ctx, event); perr != nil {
		s.logger.WithError(perr).WithFields(logrus.Fields{
			"event_id":   event.ProcessorEventID,
			"event_type": event.EventType,
		}).Error("webhook processing failed")
	}
	return event, nil
}

// ProcessEvent runs the registered handler for a persisted event. Unknown
// event types succeed so new processor events never pile up as failures.
func (s *WebhookService) ProcessEvent(ctx context.Context, event *models.WebhookEvent) error {
	if event.State == models.WebhookProcessed {
		return nil
	}
	if err := event.MarkProcessing(); err != nil {
		return err
	}
	if err := s.store.Update(ctx, event); err != nil {
		return err
	}

	handler, ok := s.handlers[event.EventType]
	if !ok {
		event.MarkProcessed()
		return s.store.Update(ctx, event)
	}

	if err := handler(ctx, event); err != nil {
		event.MarkFailed(err)
		if uerr := s.store.Update(ctx, event); uerr != nil {
			return uerr
		}
		return err
	}

	event.MarkProcessed()
	return s.store.Update(ctx, event)
}

// RetryFailed reprocesses failed events still under the retry cap
func (s *WebhookService) RetryFailed(ctx context.Context, limit int) (int, error) {
	events, err := s.store.FailedRetryable(ctx, limit)
	if err != nil {
		return 0, err
	}
	retried := 0
	for i := range events {
		if perr := s.ProcessEvent(ctx, &events[i]); perr != nil {
			s.logger.WithError(perr).WithField("event_id", events[i].ProcessorEventID).Warn("webhook retry failed")
			continue
		}
		retried++
	}
	return retried, nil
}

// RequeueStuck flips events stuck PROCESSING back to FAILED so the retry
// worker picks them up.
func (s *WebhookService) RequeueStuck(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	events, err := s.store.StuckProcessing(ctx, olderThan, limit)
	if err != nil {
		return 0, err
	}
	for i := range events {
		events[i].MarkFailed(errors.New("stuck in processing, requeued"))
		if uerr := s.store.Update(ctx, &events[i]); uerr != nil {
			return i, uerr
		}
	}
	return len(events), nil
}

// CleanupProcessed deletes processed events older than the cutoff
func (s *WebhookService) CleanupProcessed(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.store.DeleteProcessedBefore(ctx, cutoff)
}

// payload helpers

func payloadObject(event *models.WebhookEvent) map[string]interface{} {
	data, ok := event.Payload["data"].(map[string]interface{})
	if !ok {
		return nil
	}
	object, _ := data["object"].(map[string]interface{})
	return object
}

func objString(object map[string]interface{}, key string) string {
	v, _ := object[key].(string)
	return v
}

func objInt64(object map[string]interface{}, key string) int64 {
	switch v := object[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

func objBool(object map[string]interface{}, key string) bool {
	v, _ := object[key].(bool)
	return v
}

func objTime(object map[string]interface{}, key string) *time.Time {
	unix := objInt64(object, key)
	if unix == 0 {
		return nil
	}
	t := time.Unix(unix, 0)
	return &t
}

func objMetadata(object map[string]interface{}) map[string]string {
	raw, ok := object["metadata"].(map[string]interface{})
	if !ok {
		return nil
	}
	meta := make(map[string]string, len(raw))
	for k, v := range raw {
		if sv, ok := v.(string); ok {
			meta[k] = sv
		}
	}
	return meta
}

// handlers

func (s *WebhookService) handleIntentSucceeded(ctx context.Context, event *models.WebhookEvent) error {
	intentID := event.ObjectID()
	if intentID == "" {
		return fmt.Errorf("event %s has no intent id", event.ProcessorEventID)
	}
	// Re-fetch rather than trusting the payload shape: the adapter
	// normalizes status and charge id across processors.
	intent, err := s.processor.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return fmt.Errorf("fetch intent %s: %w", intentID, err)
	}
	if intent.Status != gateway.IntentStatusSucceeded {
		return fmt.Errorf("intent %s reported succeeded but is %s", intentID, intent.Status)
	}
	return s.orchestrator.HandleIntentSucceeded(ctx, intentID, intent)
}

func (s *WebhookService) handleIntentFailed(ctx context.Context, event *models.WebhookEvent) error {
	intentID := event.ObjectID()
	if intentID == "" {
		return fmt.Errorf("event %s has no intent id", event.ProcessorEventID)
	}
	code := "payment_failed"
	message := "payment failed at processor"
	if object := payloadObject(event); object != nil {
		if lastErr, ok := object["last_payment_error"].(map[string]interface{}); ok {
			if c := objString(lastErr, "code"); c != "" {
				code = c
			}
			if m := objString(lastErr, "message"); m != "" {
				message = m
			}
		}
	}
	return s.orchestrator.HandleIntentFailed(ctx, intentID, code, message)
}

func (s *WebhookService) handleIntentCanceled(ctx context.Context, event *models.WebhookEvent) error {
	intentID := event.ObjectID()
	if intentID == "" {
		return fmt.Errorf("event %s has no intent id", event.ProcessorEventID)
	}
	return s.orchestrator.HandleIntentCanceled(ctx, intentID)
}

func transferFromEvent(event *models.WebhookEvent) (*gateway.Transfer, error) {
	object := payloadObject(event)
	if object == nil {
		return nil, fmt.Errorf("event %s has no transfer object", event.ProcessorEventID)
	}
	id := objString(object, "id")
	if id == "" {
		return nil, fmt.Errorf("event %s transfer has no id", event.ProcessorEventID)
	}
	return &gateway.Transfer{
		ID:          id,
		AmountCents: objInt64(object, "amount"),
		Currency:    objString(object, "currency"),
		Destination: objString(object, "destination"),
		Reversed:    objBool(object, "reversed"),
		Metadata:    objMetadata(object),
	}, nil
}

func (s *WebhookService) handleTransferCreated(ctx context.Context, event *models.WebhookEvent) error {
	transfer, err := transferFromEvent(event)
	if err != nil {
		return err
	}
	return s.payoutSvc.HandleTransferCreated(ctx, transfer)
}

func (s *WebhookService) handleTransferPaid(ctx context.Context, event *models.WebhookEvent) error {
	transfer, err := transferFromEvent(event)
	if err != nil {
		return err
	}
	return s.payoutSvc.CompletePayoutPaid(ctx, transfer)
}

func (s *WebhookService) handleTransferFailed(ctx context.Context, event *models.WebhookEvent) error {
	transfer, err := transferFromEvent(event)
	if err != nil {
		return err
	}
	reason := "transfer failed at processor"
	if transfer.Reversed {
		reason = "transfer reversed at processor"
	}
	return s.payoutSvc.HandleTransferFailed(ctx, transfer, reason)
}

func (s *WebhookService) handleChargeRefunded(ctx context.Context, event *models.WebhookEvent) error {
	object := payloadObject(event)
	if object == nil {
		return fmt.Errorf("event %s has no charge object", event.ProcessorEventID)
	}
	refunds, ok := object["refunds"].(map[string]interface{})
	if !ok {
		return nil
	}
	items, _ := refunds["data"].([]interface{})
	for _, item := range items {
		refundObj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		refundID := objString(refundObj, "id")
		if refundID == "" {
			continue
		}
		if err := s.refundSvc.HandleChargeRefunded(ctx, refundID); err != nil {
			if isNotFound(err) {
				// Refunds issued outside this system (dashboard refunds)
				// have no local record; reconciliation flags them.
				s.logger.WithField("processor_refund_id", refundID).Warn("refund has no local record")
				continue
			}
			return err
		}
	}
	return nil
}

func (s *WebhookService) handleAccountUpdated(ctx context.Context, event *models.WebhookEvent) error {
	object := payloadObject(event)
	if object == nil {
		return fmt.Errorf("event %s has no account object", event.ProcessorEventID)
	}
	processorAccountID := objString(object, "id")
	account, err := s.accounts.GetByProcessorID(ctx, processorAccountID)
	if err != nil {
		if isNotFound(err) {
			s.logger.WithField("processor_account_id", processorAccountID).Debug("account update for unknown account")
			return nil
		}
		return err
	}

	account.ChargesEnabled = objBool(object, "charges_enabled")
	account.PayoutsEnabled = objBool(object, "payouts_enabled")
	switch {
	case objBool(object, "details_submitted") && account.PayoutsEnabled:
		account.OnboardingStatus = models.OnboardingComplete
	case account.OnboardingStatus == models.OnboardingComplete && !account.PayoutsEnabled:
		account.OnboardingStatus = models.OnboardingRestricted
	case objBool(object, "details_submitted"):
		account.OnboardingStatus = models.OnboardingInProgress
	}
	return s.accounts.UpdateGuarded(ctx, account)
}

func (s *WebhookService) handleInvoicePaid(ctx context.Context, event *models.WebhookEvent) error {
	object := payloadObject(event)
	if object == nil {
		return fmt.Errorf("event %s has no invoice object", event.ProcessorEventID)
	}
	processorSubID := objString(object, "subscription")
	if processorSubID == "" {
		return nil
	}
	sub, err := s.subs.GetByProcessorID(ctx, processorSubID)
	if err != nil {
		if isNotFound(err) {
			s.logger.WithField("processor_subscription_id", processorSubID).Warn("invoice for unknown subscription")
			return nil
		}
		return err
	}
	invoiceID := objString(object, "id")
	amount := objInt64(object, "amount_paid")
	return s.subscription.HandleInvoicePaid(ctx, sub, invoiceID, amount, objTime(object, "period_start"), objTime(object, "period_end"))
}

func (s *WebhookService) handleInvoiceFailed(ctx context.Context, event *models.WebhookEvent) error {
	object := payloadObject(event)
	if object == nil {
		return fmt.Errorf("event %s has no invoice object", event.ProcessorEventID)
	}
	processorSubID := objString(object, "subscription")
	if processorSubID == "" {
		return nil
	}
	sub, err := s.subs.GetByProcessorID(ctx, processorSubID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	return s.subscription.HandleInvoiceFailed(ctx, sub, objString(object, "id"))
}

func (s *WebhookService) handleSubscriptionUpdated(ctx context.Context, event *models.WebhookEvent) error {
	object := payloadObject(event)
	if object == nil {
		return fmt.Errorf("event %s has no subscription object", event.ProcessorEventID)
	}
	sub, err := s.subs.GetByProcessorID(ctx, objString(object, "id"))
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}

	sub.CancelAtPeriodEnd = objBool(object, "cancel_at_period_end")
	if start := objTime(object, "current_period_start"); start != nil {
		sub.CurrentPeriodStart = start
	}
	if end := objTime(object, "current_period_end"); end != nil {
		sub.CurrentPeriodEnd = end
	}

	switch objString(object, "status") {
	case "active":
		if sub.State == models.SubscriptionPending || sub.State == models.SubscriptionPastDue {
			if terr := sub.Transition(models.SubscriptionActive); terr != nil {
				return terr
			}
		}
	case "past_due", "unpaid":
		if sub.State == models.SubscriptionActive {
			if terr := sub.Transition(models.SubscriptionPastDue); terr != nil {
				return terr
			}
		}
	case "canceled":
		if sub.State != models.SubscriptionCancelled {
			if terr := sub.Transition(models.SubscriptionCancelled); terr != nil {
				return terr
			}
		}
	}
	return s.subs.UpdateGuarded(ctx, sub)
}

func (s *WebhookService) handleSubscriptionDeleted(ctx context.Context, event *models.WebhookEvent) error {
	object := payloadObject(event)
	if object == nil {
		return fmt.Errorf("event %s has no subscription object", event.ProcessorEventID)
	}
	sub, err := s.subs.GetByProcessorID(ctx, objString(object, "id"))
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	if sub.State == models.SubscriptionCancelled {
		return nil
	}
	if err := sub.Transition(models.SubscriptionCancelled); err != nil {
		return err
	}
	return s.subs.UpdateGuarded(ctx, sub)
}

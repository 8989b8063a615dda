package notification

import (
	"context"
	"log/slog"
)

const (
	// KindRecoveryCode carries a verification code for an account recovery request.
	KindRecoveryCode = "recovery_code"
	// KindPhoneChangeCode carries a verification code for a phone change request.
	KindPhoneChangeCode = "phone_change_code"
	// KindDepositRefunded announces a completed refund to the deposit owner.
	KindDepositRefunded = "deposit_refunded"
)

// Message describes a notification payload. Destination is an opaque handle
// for the delivery channel (a phone number, an email, a device token).
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems. SMS and email
// transports live behind this interface.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger instead of delivering
// them. It stands in for an SMS or email gateway in development.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

package notification

import (
	"context"
	"log/slog"
)

const (
	// KindTransferReceived is sent to the receiving account of a transfer.
	KindTransferReceived = "transfer_received"
	// KindTransferSent is sent to the sending account of a transfer.
	KindTransferSent = "transfer_sent"
)

// Message describes a notification payload.
type Message struct {
	Kind         string `json:"kind"`
	Destination  string `json:"destination"`
	Counterparty string `json:"counterparty"`
	Amount       int64  `json:"amount"`
	Comment      string `json:"comment"`
	TransferID   string `json:"transfer_id"`
	Body         string `json:"body"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"destination", message.Destination,
		"counterparty", message.Counterparty,
		"amount", message.Amount,
		"transfer_id", message.TransferID,
		"body", message.Body,
	)
	return nil
}

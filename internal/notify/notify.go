// Package notify publishes stage status messages. Delivery is best-effort:
// a failed publish is logged and never changes a stage's outcome.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// DefaultText is the fallback body for subscribers without a protocol
// specific message.
const DefaultText = "This is the default message"

// Message is a status notification.
type Message struct {
	Subject string
	Email   string
}

// Notifier delivers messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Send delivers msg and logs a failure instead of returning it.
func Send(ctx context.Context, n Notifier, msg Message, logger *slog.Logger) {
	if n == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := n.Notify(ctx, msg); err != nil {
		logger.Warn("notification failed", "subject", msg.Subject, "error", err)
	}
}

// ---------------------------------------------------------------------------
// SNS
// ---------------------------------------------------------------------------

// Compile-time interface checks.
var (
	_ Notifier = (*SNSNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)

// SNSAPI is the subset of the SNS client used by SNSNotifier.
type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes to an SNS topic with a per-protocol JSON message.
type SNSNotifier struct {
	client   SNSAPI
	topicARN string
}

// NewSNSNotifier creates a notifier for topicARN.
func NewSNSNotifier(client SNSAPI, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN}
}

// NewSNSNotifierFromConfig builds the SNS client from an AWS config.
func NewSNSNotifierFromConfig(cfg aws.Config, topicARN string) *SNSNotifier {
	return NewSNSNotifier(sns.NewFromConfig(cfg), topicARN)
}

// Notify publishes msg.
func (n *SNSNotifier) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(map[string]string{
		"default": DefaultText,
		"email":   msg.Email,
	})
	if err != nil {
		return err
	}

	in := &sns.PublishInput{
		TopicArn:         aws.String(n.topicARN),
		Message:          aws.String(string(body)),
		MessageStructure: aws.String("json"),
	}
	if msg.Subject != "" {
		in.Subject = aws.String(msg.Subject)
	}
	if _, err := n.client.Publish(ctx, in); err != nil {
		return fmt.Errorf("publishing to %s: %w", n.topicARN, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Log
// ---------------------------------------------------------------------------

// LogNotifier writes messages to a logger. It backs local runs.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Notify logs msg at info level.
func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info("notification", "subject", msg.Subject, "message", msg.Email)
	return nil
}

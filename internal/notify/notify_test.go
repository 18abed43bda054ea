package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"cardpulse/internal/util"
)

type fakeSNS struct {
	in  *sns.PublishInput
	err error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.in = in
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, f.err
}

func TestSNSNotifierMessageStructure(t *testing.T) {
	client := &fakeSNS{}
	n := NewSNSNotifier(client, "arn:aws:sns:us-east-2:123:status")
	if err := n.Notify(context.Background(), Message{Subject: "done", Email: "Partitioning complete"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if aws.ToString(client.in.MessageStructure) != "json" {
		t.Errorf("MessageStructure = %q, want json", aws.ToString(client.in.MessageStructure))
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(aws.ToString(client.in.Message)), &body); err != nil {
		t.Fatalf("message is not JSON: %v", err)
	}
	if body["default"] != DefaultText || body["email"] != "Partitioning complete" {
		t.Errorf("body = %v", body)
	}
}

func TestSendIsBestEffort(t *testing.T) {
	var buf bytes.Buffer
	logger := util.NewLoggerTo(&buf, "info", "json")

	n := NewSNSNotifier(&fakeSNS{err: errors.New("throttled")}, "arn")
	Send(context.Background(), n, Message{Subject: "x"}, logger)

	if !strings.Contains(buf.String(), "notification failed") || !strings.Contains(buf.String(), "throttled") {
		t.Errorf("log = %s", buf.String())
	}

	// A nil notifier is a no-op.
	Send(context.Background(), nil, Message{}, logger)
}

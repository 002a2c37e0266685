package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/cuchu-notify/internal/domain"
)

// Publisher is the subset of the SNS client the alerter uses.
type Publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Alerter mirrors urgent notifications to an SNS topic and sends SMS.
type Alerter struct {
	client   Publisher
	topicARN string
}

func NewClient(awsCfg aws.Config, endpointURL string) *sns.Client {
	var opts []func(*sns.Options)
	if endpointURL != "" {
		opts = append(opts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(endpointURL)
		})
	}
	return sns.NewFromConfig(awsCfg, opts...)
}

// NewAlerter returns an Alerter. With an empty topicARN, Alert is a no-op.
func NewAlerter(client Publisher, topicARN string) *Alerter {
	return &Alerter{client: client, topicARN: topicARN}
}

type alertMessage struct {
	NotificationID string                  `json:"notification_id"`
	UserID         string                  `json:"user_id"`
	Type           domain.NotificationType `json:"type"`
	Priority       domain.Priority         `json:"priority"`
	Title          string                  `json:"title"`
	Message        string                  `json:"message"`
	Data           json.RawMessage         `json:"data,omitempty"`
}

// Alert publishes n to the alert topic. Subscribers filter on the type and
// priority message attributes.
func (a *Alerter) Alert(ctx context.Context, n *domain.Notification) error {
	if a.topicARN == "" {
		return nil
	}
	body, err := json.Marshal(alertMessage{
		NotificationID: n.NotificationID,
		UserID:         n.UserID,
		Type:           n.Type,
		Priority:       n.Priority,
		Title:          n.Title,
		Message:        n.Message,
		Data:           n.Data,
	})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	_, err = a.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.topicARN),
		Subject:  aws.String(subject(n.Title)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"type":     stringAttr(string(n.Type)),
			"priority": stringAttr(string(n.Priority)),
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish alert: %w", err)
	}
	return nil
}

func (a *Alerter) SendSMS(ctx context.Context, to, message string) error {
	_, err := a.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("sns send sms: %w", err)
	}
	return nil
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}

// subject fits SNS's 100 character email subject limit.
func subject(title string) string {
	r := []rune(title)
	if len(r) > 100 {
		return string(r[:97]) + "..."
	}
	return title
}

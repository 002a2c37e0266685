package dynamo

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cuchu-notify/internal/domain"
)

// notificationItem is the stored shape of a notification: the domain record plus
// the derived attributes the table's index, filters and TTL run on.
type notificationItem struct {
	domain.Notification
	// CreatedSort orders a user's records by creation time, ties broken by id.
	CreatedSort string `dynamodbav:"created_sort"`
	// ExpiresNano is the exact expiry used by filters.
	ExpiresNano int64 `dynamodbav:"expires_nano,omitempty"`
	// ExpiresTTL is the expiry in epoch seconds, rounded up, for native TTL.
	ExpiresTTL int64 `dynamodbav:"expires_at_ttl,omitempty"`
}

func toItem(n *domain.Notification) notificationItem {
	it := notificationItem{
		Notification: *n,
		CreatedSort:  createdSort(n.CreatedAt, n.NotificationID),
	}
	if n.ExpiresAt != nil {
		it.ExpiresNano = n.ExpiresAt.UnixNano()
		it.ExpiresTTL = n.ExpiresAt.Unix()
		if n.ExpiresAt.Nanosecond() > 0 {
			it.ExpiresTTL++
		}
	}
	return it
}

func marshalNotification(n *domain.Notification) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(toItem(n))
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	return item, nil
}

func unmarshalNotification(item map[string]types.AttributeValue) (*domain.Notification, error) {
	var it notificationItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal notification: %w", err)
	}
	return &it.Notification, nil
}

// createdSort is fixed width so lexical order equals (createdAt, id) order.
func createdSort(createdAt time.Time, id string) string {
	return fmt.Sprintf("%020d#%s", createdAt.UnixNano(), id)
}

// expr accumulates a condition or filter expression and the placeholders it uses.
// DynamoDB rejects unused placeholders, so names and values are only added on use.
type expr struct {
	clauses []string
	names   map[string]string
	values  map[string]types.AttributeValue
}

func newExpr() *expr {
	return &expr{names: map[string]string{}, values: map[string]types.AttributeValue{}}
}

func (e *expr) and(clause string) *expr {
	e.clauses = append(e.clauses, clause)
	return e
}

func (e *expr) name(placeholder, attr string) *expr {
	e.names[placeholder] = attr
	return e
}

func (e *expr) str(placeholder, v string) *expr {
	e.values[placeholder] = &types.AttributeValueMemberS{Value: v}
	return e
}

func (e *expr) num(placeholder string, v int64) *expr {
	e.values[placeholder] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", v)}
	return e
}

func (e *expr) String() string {
	return strings.Join(e.clauses, " AND ")
}

// live restricts to records not expired at now.
func (e *expr) live(now time.Time) *expr {
	return e.and("(attribute_not_exists(#exp) OR #exp > :now)").
		name("#exp", attrExpiresNano).
		num(":now", now.UnixNano())
}

func (e *expr) filter(f domain.NotificationFilter) *expr {
	if f.Type != "" {
		e.and("#type = :type").name("#type", attrType).str(":type", string(f.Type))
	}
	if f.Status != "" {
		e.and("#status = :status").name("#status", attrStatus).str(":status", string(f.Status))
	}
	return e
}

// userQuery builds a newest-first query over one user's live records matching f.
// The key condition and the filter share one placeholder namespace.
func userQuery(table, userID string, f domain.NotificationFilter, now time.Time) *dynamodb.QueryInput {
	filter := newExpr().live(now).filter(f)
	filter.str(":uid", userID)
	return &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		IndexName:                 aws.String(userCreatedIndex),
		KeyConditionExpression:    aws.String("user_id = :uid"),
		FilterExpression:          aws.String(filter.String()),
		ExpressionAttributeNames:  filter.names,
		ExpressionAttributeValues: filter.values,
		ScanIndexForward:          aws.Bool(false),
	}
}

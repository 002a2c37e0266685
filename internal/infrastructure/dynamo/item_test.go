package dynamo

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cuchu-notify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationItem_RoundTrip(t *testing.T) {
	created := time.Date(2026, 2, 3, 4, 5, 6, 789, time.UTC)
	exp := created.Add(90*time.Minute + 500*time.Millisecond)
	n := &domain.Notification{
		NotificationID: "01HZX",
		UserID:         "u1",
		Type:           domain.TypeDoorbell,
		Title:          "Ring",
		Message:        "Front door",
		Priority:       domain.PriorityHigh,
		Status:         domain.StatusUnread,
		Data:           []byte(`{"device_id":"d1"}`),
		ExpiresAt:      &exp,
		CreatedAt:      created,
		UpdatedAt:      created,
	}

	item, err := marshalNotification(n)
	require.NoError(t, err)

	assert.Equal(t, &types.AttributeValueMemberS{Value: "u1"}, item[attrUserID])
	assert.Equal(t, &types.AttributeValueMemberS{Value: createdSort(created, "01HZX")}, item[attrCreatedSort])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1770096937"}, item[attrExpiresTTL])
	assert.NotContains(t, item, attrReadAt)

	got, err := unmarshalNotification(item)
	require.NoError(t, err)
	assert.Equal(t, n.NotificationID, got.NotificationID)
	assert.Equal(t, n.Type, got.Type)
	assert.True(t, created.Equal(got.CreatedAt))
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, exp.Equal(*got.ExpiresAt))
	assert.JSONEq(t, `{"device_id":"d1"}`, string(got.Data))
}

func TestNotificationItem_NoExpiry(t *testing.T) {
	item, err := marshalNotification(&domain.Notification{NotificationID: "n", UserID: "u", CreatedAt: time.Unix(1, 0)})
	require.NoError(t, err)
	assert.NotContains(t, item, attrExpiresTTL)
	assert.NotContains(t, item, attrExpiresNano)
	assert.NotContains(t, item, attrData)
}

func TestCreatedSort_OrdersByTimeThenID(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	assert.Less(t, createdSort(t0, "b"), createdSort(t0.Add(time.Nanosecond), "a"))
	assert.Less(t, createdSort(t0, "a"), createdSort(t0, "b"))
	// width does not depend on magnitude
	assert.Len(t, createdSort(time.Unix(1, 0), "x"), len(createdSort(t0, "x")))
}

func TestUserQuery(t *testing.T) {
	now := time.Unix(0, 42)
	in := userQuery("notifications", "u1", domain.NotificationFilter{Type: domain.TypePayment, Status: domain.StatusUnread}, now)

	assert.Equal(t, userCreatedIndex, aws.ToString(in.IndexName))
	assert.Equal(t, "user_id = :uid", aws.ToString(in.KeyConditionExpression))
	assert.Equal(t, "(attribute_not_exists(#exp) OR #exp > :now) AND #type = :type AND #status = :status", aws.ToString(in.FilterExpression))
	assert.Equal(t, map[string]string{"#exp": attrExpiresNano, "#type": attrType, "#status": attrStatus}, in.ExpressionAttributeNames)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "42"}, in.ExpressionAttributeValues[":now"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "u1"}, in.ExpressionAttributeValues[":uid"])
	assert.False(t, aws.ToBool(in.ScanIndexForward))

	plain := userQuery("notifications", "u1", domain.NotificationFilter{}, now)
	assert.Equal(t, map[string]string{"#exp": attrExpiresNano}, plain.ExpressionAttributeNames)
	assert.Len(t, plain.ExpressionAttributeValues, 2)
}

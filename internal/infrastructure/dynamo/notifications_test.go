package dynamo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/cuchu-notify/internal/application/notification"
	"github.com/cuchu-notify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dynamoCall is one request received by fakeDynamo, with the operation name
// taken from X-Amz-Target.
type dynamoCall struct {
	Op   string
	Body map[string]any
}

// fakeDynamo answers DynamoDB JSON protocol requests with reply.
type fakeDynamo struct {
	mu    sync.Mutex
	calls []dynamoCall
	reply func(op string, body map[string]any) (int, any)
}

func (f *fakeDynamo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	op := strings.TrimPrefix(r.Header.Get("X-Amz-Target"), "DynamoDB_20120810.")
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.calls = append(f.calls, dynamoCall{Op: op, Body: body})
	f.mu.Unlock()

	status, out := f.reply(op, body)
	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}

func (f *fakeDynamo) ops(op string) []dynamoCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []dynamoCall
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func newFakeRepo(t *testing.T, reply func(op string, body map[string]any) (int, any)) (*NotificationRepo, *fakeDynamo) {
	t.Helper()
	f := &fakeDynamo{reply: reply}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	client := dynamodb.New(dynamodb.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String(srv.URL),
		Credentials:      credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
		RetryMaxAttempts: 1,
	})
	return NewNotificationRepo(client, "notifications"), f
}

func okReply() (int, any) { return http.StatusOK, map[string]any{} }

// conditionFailedReply is a ConditionalCheckFailedException carrying item as ALL_OLD.
func conditionFailedReply(item map[string]any) (int, any) {
	out := map[string]any{
		"__type":  "com.amazonaws.dynamodb.v20120810#ConditionalCheckFailedException",
		"message": "The conditional request failed",
	}
	if item != nil {
		out["Item"] = item
	}
	return http.StatusBadRequest, out
}

func strAV(v string) map[string]any { return map[string]any{"S": v} }

func keyOf(body map[string]any) string {
	key, _ := body["Key"].(map[string]any)
	id, _ := key[attrID].(map[string]any)
	v, _ := id["S"].(string)
	return v
}

var testAt = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func TestMarkRead_SendsGuardedUpdate(t *testing.T) {
	repo, f := newFakeRepo(t, func(string, map[string]any) (int, any) { return okReply() })

	changed, err := repo.MarkRead(context.Background(), "n1", "alice", testAt)
	require.NoError(t, err)
	assert.True(t, changed)

	calls := f.ops("UpdateItem")
	require.Len(t, calls, 1)
	body := calls[0].Body
	assert.Equal(t, "notifications", body["TableName"])
	assert.Equal(t, "n1", keyOf(body))
	assert.Equal(t, "user_id = :c_uid AND #cs = :from", body["ConditionExpression"])
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1, #f2 = :v2", body["UpdateExpression"])
	assert.Equal(t, "ALL_OLD", body["ReturnValuesOnConditionCheckFailure"])

	names := body["ExpressionAttributeNames"].(map[string]any)
	assert.Equal(t, attrStatus, names["#cs"])
	assert.Equal(t, attrReadAt, names["#f0"])
	assert.Equal(t, attrStatus, names["#f1"])
	assert.Equal(t, attrUpdatedAt, names["#f2"])

	values := body["ExpressionAttributeValues"].(map[string]any)
	assert.Equal(t, strAV("alice"), values[":c_uid"])
	assert.Equal(t, strAV(string(domain.StatusUnread)), values[":from"])
	assert.Equal(t, strAV(string(domain.StatusRead)), values[":v1"])
	assert.Equal(t, strAV(testAt.Format(time.RFC3339Nano)), values[":v0"])
}

func TestArchive_GuardExcludesArchived(t *testing.T) {
	repo, f := newFakeRepo(t, func(string, map[string]any) (int, any) { return okReply() })

	changed, err := repo.Archive(context.Background(), "n1", "alice", testAt)
	require.NoError(t, err)
	assert.True(t, changed)

	body := f.ops("UpdateItem")[0].Body
	assert.Equal(t, "user_id = :c_uid AND #cs <> :from", body["ConditionExpression"])
	values := body["ExpressionAttributeValues"].(map[string]any)
	assert.Equal(t, strAV(string(domain.StatusArchived)), values[":from"])
}

func TestTransition_ConditionFailed(t *testing.T) {
	cases := []struct {
		name    string
		item    map[string]any
		wantErr error
	}{
		{"owned record already transitioned", map[string]any{attrUserID: strAV("alice"), attrStatus: strAV("read")}, nil},
		{"record owned by someone else", map[string]any{attrUserID: strAV("bob"), attrStatus: strAV("unread")}, domain.ErrNotFound},
		{"record missing", nil, domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, _ := newFakeRepo(t, func(string, map[string]any) (int, any) { return conditionFailedReply(tc.item) })

			for _, op := range []func(context.Context, string, string, time.Time) (bool, error){repo.MarkRead, repo.Archive} {
				changed, err := op(context.Background(), "n1", "alice", testAt)
				assert.False(t, changed)
				if tc.wantErr == nil {
					assert.NoError(t, err)
				} else {
					assert.ErrorIs(t, err, tc.wantErr)
				}
			}
		})
	}
}

func TestTransition_OtherErrorsPassThrough(t *testing.T) {
	repo, _ := newFakeRepo(t, func(string, map[string]any) (int, any) {
		return http.StatusBadRequest, map[string]any{
			"__type":  "com.amazonaws.dynamodb.v20120810#ValidationException",
			"message": "bad expression",
		}
	})

	_, err := repo.MarkRead(context.Background(), "n1", "alice", testAt)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkAllRead_CountsOnlyOwnTransitions(t *testing.T) {
	repo, f := newFakeRepo(t, func(op string, body map[string]any) (int, any) {
		switch op {
		case "Query":
			return http.StatusOK, map[string]any{
				"Items": []any{
					map[string]any{attrID: strAV("n1")},
					map[string]any{attrID: strAV("n2")},
					map[string]any{attrID: strAV("n3")},
				},
				"Count":        3,
				"ScannedCount": 3,
			}
		case "UpdateItem":
			switch keyOf(body) {
			case "n2":
				return conditionFailedReply(map[string]any{attrUserID: strAV("alice"), attrStatus: strAV("archived")})
			case "n3":
				return conditionFailedReply(nil)
			}
		}
		return okReply()
	})

	changed, err := repo.MarkAllRead(context.Background(), "alice", testAt)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	query := f.ops("Query")
	require.Len(t, query, 1)
	assert.Equal(t, userCreatedIndex, query[0].Body["IndexName"])
	values := query[0].Body["ExpressionAttributeValues"].(map[string]any)
	assert.Equal(t, strAV("alice"), values[":uid"])
	assert.Equal(t, strAV(string(domain.StatusUnread)), values[":status"])

	updates := f.ops("UpdateItem")
	require.Len(t, updates, 3)
	for i, c := range updates {
		assert.Equal(t, fmt.Sprintf("n%d", i+1), keyOf(c.Body))
	}
}

func TestUpdateContent(t *testing.T) {
	title := "New title"
	repo, f := newFakeRepo(t, func(string, map[string]any) (int, any) { return okReply() })

	err := repo.UpdateContent(context.Background(), "n1", "alice", notification.ContentUpdate{
		Title: &title,
		Data:  json.RawMessage(`null`),
	}, testAt)
	require.NoError(t, err)

	body := f.ops("UpdateItem")[0].Body
	assert.Equal(t, "user_id = :c_uid", body["ConditionExpression"])
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1 REMOVE #r0", body["UpdateExpression"])
	names := body["ExpressionAttributeNames"].(map[string]any)
	assert.Equal(t, attrTitle, names["#f0"])
	assert.Equal(t, attrUpdatedAt, names["#f1"])
	assert.Equal(t, attrData, names["#r0"])
	values := body["ExpressionAttributeValues"].(map[string]any)
	assert.Equal(t, strAV("alice"), values[":c_uid"])
	assert.Equal(t, strAV(title), values[":v0"])
}

func TestUpdateContent_NotOwnedIsNotFound(t *testing.T) {
	title := "x"
	repo, _ := newFakeRepo(t, func(string, map[string]any) (int, any) { return conditionFailedReply(nil) })

	err := repo.UpdateContent(context.Background(), "n1", "bob", notification.ContentUpdate{Title: &title}, testAt)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete(t *testing.T) {
	repo, f := newFakeRepo(t, func(string, map[string]any) (int, any) { return okReply() })

	require.NoError(t, repo.Delete(context.Background(), "n1", "alice"))
	body := f.ops("DeleteItem")[0].Body
	assert.Equal(t, "n1", keyOf(body))
	assert.Equal(t, "user_id = :uid", body["ConditionExpression"])
	assert.Equal(t, strAV("alice"), body["ExpressionAttributeValues"].(map[string]any)[":uid"])

	repo, _ = newFakeRepo(t, func(string, map[string]any) (int, any) { return conditionFailedReply(nil) })
	assert.ErrorIs(t, repo.Delete(context.Background(), "n1", "bob"), domain.ErrNotFound)
}

func TestDeleteExpired_BatchesMatches(t *testing.T) {
	repo, f := newFakeRepo(t, func(op string, _ map[string]any) (int, any) {
		if op == "Scan" {
			return http.StatusOK, map[string]any{
				"Items":        []any{map[string]any{attrID: strAV("old1")}, map[string]any{attrID: strAV("old2")}},
				"Count":        2,
				"ScannedCount": 5,
			}
		}
		return http.StatusOK, map[string]any{"UnprocessedItems": map[string]any{}}
	})

	purged, err := repo.DeleteExpired(context.Background(), testAt)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	scan := f.ops("Scan")[0].Body
	assert.Equal(t, "#exp <= :now", scan["FilterExpression"])
	values := scan["ExpressionAttributeValues"].(map[string]any)
	assert.Equal(t, map[string]any{"N": fmt.Sprintf("%d", testAt.UnixNano())}, values[":now"])

	batches := f.ops("BatchWriteItem")
	require.Len(t, batches, 1)
	reqs := batches[0].Body["RequestItems"].(map[string]any)["notifications"].([]any)
	assert.Len(t, reqs, 2)
}

func TestDeleteExpired_NothingToPurge(t *testing.T) {
	repo, f := newFakeRepo(t, func(string, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"Items": []any{}, "Count": 0, "ScannedCount": 0}
	})

	purged, err := repo.DeleteExpired(context.Background(), testAt)
	require.NoError(t, err)
	assert.Equal(t, 0, purged)
	assert.Empty(t, f.ops("BatchWriteItem"))
}

func TestList_OffsetOutOfRange(t *testing.T) {
	repo, _ := newFakeRepo(t, func(string, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{
			"Items": []any{map[string]any{attrID: strAV("n1"), attrUserID: strAV("alice")}},
			"Count": 1,
		}
	})

	for _, offset := range []int{-9223372036854775616, 1, 1 << 40} {
		items, total, err := repo.List(context.Background(), "alice", domain.NotificationFilter{}, testAt, offset, 100)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Empty(t, items)
	}
}

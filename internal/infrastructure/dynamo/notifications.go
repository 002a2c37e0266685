package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cuchu-notify/internal/application/notification"
	"github.com/cuchu-notify/internal/domain"
)

// batchWriteLimit is the maximum number of requests in one BatchWriteItem call.
const batchWriteLimit = 25

var _ notification.Store = (*NotificationRepo)(nil)

// NotificationRepo is the DynamoDB notification store. Records are keyed by
// notification_id; a user's records are read through the user_id/created_sort index.
type NotificationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewNotificationRepo(client *dynamodb.Client, tableName string) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName}
}

func (r *NotificationRepo) Put(ctx context.Context, n *domain.Notification) error {
	item, err := marshalNotification(n)
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(notification_id)"),
	})
	if _, failed := conditionFailed(err); failed {
		return fmt.Errorf("notification %s: %w", n.NotificationID, domain.ErrConflict)
	}
	return err
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(attrID, notificationID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, domain.ErrNotFound
	}
	return unmarshalNotification(out.Item)
}

func (r *NotificationRepo) MarkRead(ctx context.Context, notificationID, userID string, at time.Time) (bool, error) {
	return r.transition(ctx, notificationID, userID, "#cs = :from", domain.StatusUnread, map[string]interface{}{
		attrStatus:    domain.StatusRead,
		attrReadAt:    at,
		attrUpdatedAt: at,
	})
}

func (r *NotificationRepo) Archive(ctx context.Context, notificationID, userID string, at time.Time) (bool, error) {
	return r.transition(ctx, notificationID, userID, "#cs <> :from", domain.StatusArchived, map[string]interface{}{
		attrStatus:    domain.StatusArchived,
		attrUpdatedAt: at,
	})
}

// transition applies updates only while the record is owned by userID and its
// status satisfies guard, which compares #cs against :from. A failed guard on an
// owned record reports false.
func (r *NotificationRepo) transition(ctx context.Context, notificationID, userID, guard string, from domain.Status, updates map[string]interface{}) (bool, error) {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return false, err
	}
	cond := newExpr().
		and("user_id = :c_uid").str(":c_uid", userID).
		and(guard).name("#cs", attrStatus).str(":from", string(from))
	ue.bind(cond.names, cond.values)

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.tableName),
		Key:                                 strKey(attrID, notificationID),
		UpdateExpression:                    aws.String(ue.Expr),
		ConditionExpression:                 aws.String(cond.String()),
		ExpressionAttributeNames:            ue.Names,
		ExpressionAttributeValues:           ue.Values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return true, nil
	}
	old, failed := conditionFailed(err)
	if !failed {
		return false, err
	}
	if owner, ok := old[attrUserID].(*types.AttributeValueMemberS); ok && owner.Value == userID {
		return false, nil
	}
	return false, domain.ErrNotFound
}

// MarkAllRead transitions each live unread record with its own conditional
// write, so a record edited or archived meanwhile is left alone.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error) {
	ids, err := r.userIDs(ctx, userID, domain.NotificationFilter{Status: domain.StatusUnread}, at)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, id := range ids {
		ok, err := r.MarkRead(ctx, id, userID, at)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

func (r *NotificationRepo) UpdateContent(ctx context.Context, notificationID, userID string, c notification.ContentUpdate, at time.Time) error {
	updates := map[string]interface{}{attrUpdatedAt: at}
	if c.Title != nil {
		updates[attrTitle] = *c.Title
	}
	if c.Message != nil {
		updates[attrMessage] = *c.Message
	}
	if c.Priority != nil {
		updates[attrPriority] = *c.Priority
	}
	clearData := c.Data != nil && domain.EmptyPayload(c.Data)
	if c.Data != nil && !clearData {
		updates[attrData] = []byte(c.Data)
	}
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	if clearData {
		ue.remove(attrData)
	}
	ue.bind(nil, map[string]types.AttributeValue{":c_uid": &types.AttributeValueMemberS{Value: userID}})

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(attrID, notificationID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("user_id = :c_uid"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if _, failed := conditionFailed(err); failed {
		return domain.ErrNotFound
	}
	return err
}

func (r *NotificationRepo) Delete(ctx context.Context, notificationID, userID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(attrID, notificationID),
		ConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if _, failed := conditionFailed(err); failed {
		return domain.ErrNotFound
	}
	return err
}

func (r *NotificationRepo) DeleteAll(ctx context.Context, userID string) (int, error) {
	in := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(userCreatedIndex),
		KeyConditionExpression:    aws.String("user_id = :uid"),
		ProjectionExpression:      aws.String("#id"),
		ExpressionAttributeNames:  map[string]string{"#id": attrID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":uid": &types.AttributeValueMemberS{Value: userID}},
	}
	var ids []string
	p := dynamodb.NewQueryPaginator(r.client, in)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		ids = append(ids, itemIDs(out.Items)...)
	}
	if err := r.batchDelete(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// DeleteExpired scans for records past their exact expiry. Native TTL removes
// them too, but only eventually; this keeps the purge deterministic.
func (r *NotificationRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                 aws.String(r.tableName),
		FilterExpression:          aws.String("#exp <= :now"),
		ProjectionExpression:      aws.String("#id"),
		ExpressionAttributeNames:  map[string]string{"#exp": attrExpiresNano, "#id": attrID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.UnixNano())}},
	})
	var ids []string
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		ids = append(ids, itemIDs(out.Items)...)
	}
	if err := r.batchDelete(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// List reads every match to count it, then slices the requested page.
func (r *NotificationRepo) List(ctx context.Context, userID string, f domain.NotificationFilter, now time.Time, offset, limit int) ([]domain.Notification, int, error) {
	var all []map[string]types.AttributeValue
	p := dynamodb.NewQueryPaginator(r.client, userQuery(r.tableName, userID, f, now))
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, out.Items...)
	}
	total := len(all)
	if offset < 0 || limit <= 0 || offset >= total {
		return []domain.Notification{}, total, nil
	}
	end := offset + limit
	if end > total || end < offset {
		end = total
	}
	items := make([]domain.Notification, 0, end-offset)
	for _, raw := range all[offset:end] {
		n, err := unmarshalNotification(raw)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *n)
	}
	return items, total, nil
}

func (r *NotificationRepo) Count(ctx context.Context, userID string, f domain.NotificationFilter, now time.Time) (int, error) {
	in := userQuery(r.tableName, userID, f, now)
	in.Select = types.SelectCount
	total := 0
	p := dynamodb.NewQueryPaginator(r.client, in)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		total += int(out.Count)
	}
	return total, nil
}

func (r *NotificationRepo) Tally(ctx context.Context, userID string, now time.Time) ([]notification.TallyRow, error) {
	in := userQuery(r.tableName, userID, domain.NotificationFilter{}, now)
	in.ProjectionExpression = aws.String("#t, #s")
	in.ExpressionAttributeNames["#t"] = attrType
	in.ExpressionAttributeNames["#s"] = attrStatus

	type key struct {
		t domain.NotificationType
		s domain.Status
	}
	counts := map[key]int{}
	p := dynamodb.NewQueryPaginator(r.client, in)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, it := range out.Items {
			counts[key{domain.NotificationType(strAttr(it, attrType)), domain.Status(strAttr(it, attrStatus))}]++
		}
	}
	rows := make([]notification.TallyRow, 0, len(counts))
	for k, n := range counts {
		rows = append(rows, notification.TallyRow{Type: k.t, Status: k.s, Count: n})
	}
	return rows, nil
}

func (r *NotificationRepo) userIDs(ctx context.Context, userID string, f domain.NotificationFilter, now time.Time) ([]string, error) {
	in := userQuery(r.tableName, userID, f, now)
	in.ProjectionExpression = aws.String("#id")
	in.ExpressionAttributeNames["#id"] = attrID

	var ids []string
	p := dynamodb.NewQueryPaginator(r.client, in)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		ids = append(ids, itemIDs(out.Items)...)
	}
	return ids, nil
}

// batchDelete removes ids in chunks, resubmitting unprocessed requests a bounded number of times.
func (r *NotificationRepo) batchDelete(ctx context.Context, ids []string) error {
	for _, chunk := range chunkIDs(ids, batchWriteLimit) {
		reqs := make([]types.WriteRequest, len(chunk))
		for i, id := range chunk {
			reqs[i] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: strKey(attrID, id)}}
		}
		pending := map[string][]types.WriteRequest{r.tableName: reqs}
		for attempt := 0; len(pending[r.tableName]) > 0; attempt++ {
			if attempt == 5 {
				return fmt.Errorf("batch delete: %d requests left unprocessed", len(pending[r.tableName]))
			}
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt*50) * time.Millisecond):
				}
			}
			out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return err
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

func itemIDs(items []map[string]types.AttributeValue) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if id := strAttr(it, attrID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func strAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

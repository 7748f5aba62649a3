package dynamo

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/school-api-nosql/internal/domain"
)

// TargetRepo provides typed DynamoDB operations for the notification_targets
// table. It also owns the writes that must land atomically with the
// notification item itself (create, retarget, cascade delete), issued as a
// single TransactWriteItems call so readers never observe a partial target
// set.
//
// TransactWriteItems caps a transaction at 100 items, which bounds a single
// notification's fan-out to 99 classes.
type TargetRepo struct {
	client            *dynamodb.Client
	tableName         string
	notificationTable string
}

func NewTargetRepo(client *dynamodb.Client, tableName, notificationTable string) *TargetRepo {
	return &TargetRepo{client: client, tableName: tableName, notificationTable: notificationTable}
}

// CreateNotification persists the notification and its targets in one
// transaction.
func (r *TargetRepo) CreateNotification(ctx context.Context, n *domain.Notification, targets []domain.NotificationTarget) error {
	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	writes := []types.TransactWriteItem{{
		Put: &types.Put{TableName: aws.String(r.notificationTable), Item: item},
	}}
	for i := range targets {
		ti, err := attributevalue.MarshalMap(&targets[i])
		if err != nil {
			return fmt.Errorf("marshal target: %w", err)
		}
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(r.tableName), Item: ti},
		})
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	return err
}

// ReplaceForNotification swaps the notification's full target set for the
// given one, applying any field updates to the notification item in the same
// transaction. Targets absent from the new set are deleted; the new set is
// written in full. A key may not appear twice in one transaction, so classes
// present in both the old and new set are only written, never deleted.
func (r *TargetRepo) ReplaceForNotification(ctx context.Context, notificationID string, targets []domain.NotificationTarget, updates map[string]interface{}) error {
	existing, err := r.ListByNotification(ctx, notificationID)
	if err != nil {
		return err
	}

	keep := make(map[string]bool, len(targets))
	for _, t := range targets {
		keep[t.ClassID] = true
	}

	var writes []types.TransactWriteItem
	if len(updates) > 0 {
		ue, err := buildUpdateExpr(updates)
		if err != nil {
			return err
		}
		writes = append(writes, types.TransactWriteItem{
			Update: &types.Update{
				TableName:                 aws.String(r.notificationTable),
				Key:                       strKey("notification_id", notificationID),
				UpdateExpression:          aws.String(ue.Expr),
				ExpressionAttributeNames:  ue.Names,
				ExpressionAttributeValues: ue.Values,
			},
		})
	}
	for _, t := range existing {
		if keep[t.ClassID] {
			continue
		}
		writes = append(writes, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       compositeKey("notification_id", notificationID, "class_id", t.ClassID),
			},
		})
	}
	for i := range targets {
		ti, err := attributevalue.MarshalMap(&targets[i])
		if err != nil {
			return fmt.Errorf("marshal target: %w", err)
		}
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(r.tableName), Item: ti},
		})
	}
	if len(writes) == 0 {
		return nil
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	return err
}

// DeleteNotification removes the notification and cascades to all its
// targets in one transaction.
func (r *TargetRepo) DeleteNotification(ctx context.Context, notificationID string) error {
	existing, err := r.ListByNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	writes := []types.TransactWriteItem{{
		Delete: &types.Delete{
			TableName: aws.String(r.notificationTable),
			Key:       strKey("notification_id", notificationID),
		},
	}}
	for _, t := range existing {
		writes = append(writes, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       compositeKey("notification_id", notificationID, "class_id", t.ClassID),
			},
		})
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	return err
}

// ListByNotification returns the full target set of one notification.
func (r *TargetRepo) ListByNotification(ctx context.Context, notificationID string) ([]domain.NotificationTarget, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("notification_id = :nid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":nid": &types.AttributeValueMemberS{Value: notificationID},
		},
	})
	if err != nil {
		return nil, err
	}
	var targets []domain.NotificationTarget
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// ListByClassIDs returns every target whose class is in the given set,
// ordered by the owning notification's creation time, newest first.
func (r *TargetRepo) ListByClassIDs(ctx context.Context, classIDs []string) ([]domain.NotificationTarget, error) {
	var all []domain.NotificationTarget
	for _, classID := range classIDs {
		targets, err := r.queryByClass(ctx, classID, 0)
		if err != nil {
			return nil, err
		}
		all = append(all, targets...)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].NotificationCreatedAt.Equal(all[j].NotificationCreatedAt) {
			return all[i].NotificationCreatedAt.After(all[j].NotificationCreatedAt)
		}
		return all[i].NotificationID > all[j].NotificationID
	})
	return all, nil
}

// ListRecentByClass returns up to limit targets for one class, newest
// notification first.
func (r *TargetRepo) ListRecentByClass(ctx context.Context, classID string, limit int) ([]domain.NotificationTarget, error) {
	return r.queryByClass(ctx, classID, int32(limit))
}

func (r *TargetRepo) queryByClass(ctx context.Context, classID string, limit int32) ([]domain.NotificationTarget, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("class_id-notification_created_at-index"),
		KeyConditionExpression: aws.String("class_id = :cid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": &types.AttributeValueMemberS{Value: classID},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(limit)
	}
	out, err := r.client.Query(ctx, in)
	if err != nil {
		return nil, err
	}
	var targets []domain.NotificationTarget
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/school-api-nosql/internal/domain"
)

// NotificationRepo provides typed DynamoDB operations for the notifications
// table. Writes that must be atomic with the notification's targets live on
// TargetRepo instead.
type NotificationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewNotificationRepo(client *dynamodb.Client, tableName string) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName}
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("notification_id", notificationID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	var n domain.Notification
	if err := attributevalue.UnmarshalMap(out.Item, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepo) Update(ctx context.Context, notificationID string, updates map[string]interface{}) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("notification_id", notificationID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}

// ListByTeacher queries the teacher_id-created_at GSI, newest first.
func (r *NotificationRepo) ListByTeacher(ctx context.Context, teacherID string) ([]domain.Notification, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("teacher_id-created_at-index"),
		KeyConditionExpression: aws.String("teacher_id = :tid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tid": &types.AttributeValueMemberS{Value: teacherID},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, err
	}
	var notifications []domain.Notification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// ListByTeacherAndStatus is ListByTeacher filtered to one lifecycle status.
func (r *NotificationRepo) ListByTeacherAndStatus(ctx context.Context, teacherID, status string) ([]domain.Notification, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("teacher_id-created_at-index"),
		KeyConditionExpression: aws.String("teacher_id = :tid"),
		FilterExpression:       aws.String("#s = :status"),
		ExpressionAttributeNames: map[string]string{
			"#s": fieldStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tid":    &types.AttributeValueMemberS{Value: teacherID},
			":status": &types.AttributeValueMemberS{Value: status},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, err
	}
	var notifications []domain.Notification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// CountByTeacher counts all notifications authored by one teacher.
func (r *NotificationRepo) CountByTeacher(ctx context.Context, teacherID string) (int, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("teacher_id-created_at-index"),
		KeyConditionExpression: aws.String("teacher_id = :tid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tid": &types.AttributeValueMemberS{Value: teacherID},
		},
		Select: types.SelectCount,
	})
	if err != nil {
		return 0, err
	}
	return int(out.Count), nil
}

// ListActiveScheduledBefore returns ACTIVE notifications whose scheduled time
// is strictly before now — the expiry sweep's candidate set.
func (r *NotificationRepo) ListActiveScheduledBefore(ctx context.Context, now time.Time) ([]domain.Notification, error) {
	return r.listActiveByScheduledAt(ctx, now, "#s = :status AND scheduled_at < :now", false)
}

// ListActiveScheduledAfter returns ACTIVE notifications scheduled after now,
// soonest first.
func (r *NotificationRepo) ListActiveScheduledAfter(ctx context.Context, now time.Time) ([]domain.Notification, error) {
	return r.listActiveByScheduledAt(ctx, now, "#s = :status AND scheduled_at > :now", true)
}

func (r *NotificationRepo) listActiveByScheduledAt(ctx context.Context, now time.Time, keyCond string, forward bool) ([]domain.Notification, error) {
	nowAV, err := attributevalue.Marshal(now.UTC())
	if err != nil {
		return nil, err
	}
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("status-scheduled_at-index"),
		KeyConditionExpression: aws.String(keyCond),
		ExpressionAttributeNames: map[string]string{
			"#s": fieldStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: domain.StatusActive},
			":now":    nowAV,
		},
		ScanIndexForward: aws.Bool(forward),
	})
	if err != nil {
		return nil, err
	}
	var notifications []domain.Notification
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkExpired transitions one notification ACTIVE→EXPIRED. The condition
// guards against racing sweeps and author edits: if the status is no longer
// ACTIVE the update is rejected and ErrConflict is returned.
func (r *NotificationRepo) MarkExpired(ctx context.Context, notificationID string, now time.Time) error {
	nowAV, err := attributevalue.Marshal(now.UTC())
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("notification_id", notificationID),
		UpdateExpression:    aws.String("SET #s = :expired, #u = :now"),
		ConditionExpression: aws.String("#s = :active"),
		ExpressionAttributeNames: map[string]string{
			"#s": fieldStatus,
			"#u": fieldUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expired": &types.AttributeValueMemberS{Value: domain.StatusExpired},
			":active":  &types.AttributeValueMemberS{Value: domain.StatusActive},
			":now":     nowAV,
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("notification %s is no longer active: %w", notificationID, domain.ErrConflict)
		}
		return err
	}
	return nil
}

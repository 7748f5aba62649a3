package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/school-api-nosql/internal/domain"
)

// MembershipRepo provides typed DynamoDB operations for the class_members table.
type MembershipRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewMembershipRepo(client *dynamodb.Client, tableName string) *MembershipRepo {
	return &MembershipRepo{client: client, tableName: tableName}
}

// Put inserts one enrollment. The conditional write makes the
// (class, student) pair unique: re-enrolling is a conflict.
func (r *MembershipRepo) Put(ctx context.Context, m *domain.ClassMember) error {
	item, err := attributevalue.MarshalMap(m)
	if err != nil {
		return fmt.Errorf("marshal class member: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(class_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("student %s already enrolled in class %s: %w", m.StudentID, m.ClassID, domain.ErrConflict)
		}
		return err
	}
	return nil
}

// ListByClass returns every enrollment for one class.
func (r *MembershipRepo) ListByClass(ctx context.Context, classID string) ([]domain.ClassMember, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("class_id = :cid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": &types.AttributeValueMemberS{Value: classID},
		},
	})
	if err != nil {
		return nil, err
	}
	var members []domain.ClassMember
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// ClassIDsForStudent answers "which classes is this student enrolled in"
// via the student_id GSI.
func (r *MembershipRepo) ClassIDsForStudent(ctx context.Context, studentID string) ([]string, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("student_id-index"),
		KeyConditionExpression: aws.String("student_id = :sid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid": &types.AttributeValueMemberS{Value: studentID},
		},
	})
	if err != nil {
		return nil, err
	}
	var members []domain.ClassMember
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &members); err != nil {
		return nil, err
	}
	classIDs := make([]string, 0, len(members))
	for _, m := range members {
		classIDs = append(classIDs, m.ClassID)
	}
	return classIDs, nil
}

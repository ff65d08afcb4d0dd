package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/reservation"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DynamoAPI is the part of the DynamoDB client the ledger uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoLedgerRepository keeps one partition per menu date. Inventory items use
// sort key ITEM#<food item>; applied operations use OP#<food item>#<operation>.
//
// Condition expressions cannot do arithmetic, so each item also stores
// remaining = available_quantity - sold_quantity and every update keeps the
// three attributes consistent.
type DynamoLedgerRepository struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

func NewDynamoLedgerRepository(client DynamoAPI, table string) *DynamoLedgerRepository {
	return &DynamoLedgerRepository{client: client, table: table, now: time.Now}
}

type ddbInventory struct {
	MenuDate          string `dynamodbav:"menu_date"`
	SortKey           string `dynamodbav:"sk"`
	FoodItemID        string `dynamodbav:"food_item_id"`
	AvailableQuantity int    `dynamodbav:"available_quantity"`
	SoldQuantity      int    `dynamodbav:"sold_quantity"`
	Remaining         int    `dynamodbav:"remaining"`
	CreatedAt         string `dynamodbav:"created_at"`
	UpdatedAt         string `dynamodbav:"updated_at"`
}

type ddbEntry struct {
	MenuDate    string `dynamodbav:"menu_date"`
	SortKey     string `dynamodbav:"sk"`
	ID          string `dynamodbav:"id"`
	FoodItemID  string `dynamodbav:"food_item_id"`
	OperationID string `dynamodbav:"operation_id"`
	OrderID     string `dynamodbav:"order_id,omitempty"`
	Delta       int    `dynamodbav:"delta"`
	CreatedAt   string `dynamodbav:"created_at"`
}

func itemKey(foodItemID string) string { return "ITEM#" + foodItemID }

func entryKey(foodItemID, operationID string) string {
	return "OP#" + foodItemID + "#" + operationID
}

func (r *DynamoLedgerRepository) key(date, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"menu_date": &types.AttributeValueMemberS{Value: date},
		"sk":        &types.AttributeValueMemberS{Value: sk},
	}
}

func (d ddbInventory) toModel() models.InventoryRecord {
	rec := models.InventoryRecord{
		MenuDate:          d.MenuDate,
		FoodItemID:        d.FoodItemID,
		AvailableQuantity: d.AvailableQuantity,
		SoldQuantity:      d.SoldQuantity,
	}
	if t, err := time.Parse(time.RFC3339, d.CreatedAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, d.UpdatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return rec
}

func (r *DynamoLedgerRepository) Get(ctx context.Context, date, foodItemID string) (*models.InventoryRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &r.table,
		Key:            r.key(date, itemKey(foodItemID)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var di ddbInventory
	if err := attributevalue.UnmarshalMap(out.Item, &di); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	rec := di.toModel()
	return &rec, nil
}

func (r *DynamoLedgerRepository) query(ctx context.Context, date, prefix string) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	var start map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              &r.table,
			KeyConditionExpression: aws.String("menu_date = :d AND begins_with(sk, :p)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":d": &types.AttributeValueMemberS{Value: date},
				":p": &types.AttributeValueMemberS{Value: prefix},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb Query failed: %w", err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		start = out.LastEvaluatedKey
	}
}

func (r *DynamoLedgerRepository) ListByDate(ctx context.Context, date string) ([]models.InventoryRecord, error) {
	items, err := r.query(ctx, date, "ITEM#")
	if err != nil {
		return nil, err
	}
	var raw []ddbInventory
	if err := attributevalue.UnmarshalListOfMaps(items, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	recs := make([]models.InventoryRecord, 0, len(raw))
	for _, d := range raw {
		recs = append(recs, d.toModel())
	}
	return recs, nil
}

func (r *DynamoLedgerRepository) SetAvailable(ctx context.Context, date, foodItemID string, available int) (*models.InventoryRecord, error) {
	now := r.now().UTC().Format(time.RFC3339)
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &r.table,
		Key:       r.key(date, itemKey(foodItemID)),
		UpdateExpression: aws.String("SET food_item_id = :f, available_quantity = :a, " +
			"sold_quantity = if_not_exists(sold_quantity, :zero), " +
			"remaining = :a - if_not_exists(sold_quantity, :zero), " +
			"created_at = if_not_exists(created_at, :now), updated_at = :now"),
		ConditionExpression: aws.String("attribute_not_exists(sk) OR sold_quantity <= :a"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":f":    &types.AttributeValueMemberS{Value: foodItemID},
			":a":    &types.AttributeValueMemberN{Value: fmt.Sprint(available)},
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":now":  &types.AttributeValueMemberS{Value: now},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrBelowSold
		}
		return nil, fmt.Errorf("dynamodb UpdateItem failed: %w", err)
	}

	var di ddbInventory
	if err := attributevalue.UnmarshalMap(out.Attributes, &di); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	rec := di.toModel()
	return &rec, nil
}

// adjustUpdate builds the conditional counter update for delta.
func (r *DynamoLedgerRepository) adjustUpdate(req reservation.AdjustRequest, now string) *types.Update {
	magnitude := req.Delta
	cond := "attribute_exists(sk) AND remaining >= :m"
	if req.Delta < 0 {
		magnitude = -req.Delta
		cond = "attribute_exists(sk) AND sold_quantity >= :m"
	}
	return &types.Update{
		TableName:           &r.table,
		Key:                 r.key(req.Date, itemKey(req.FoodItemID)),
		UpdateExpression:    aws.String("SET sold_quantity = sold_quantity + :d, remaining = remaining - :d, updated_at = :now"),
		ConditionExpression: aws.String(cond),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d":   &types.AttributeValueMemberN{Value: fmt.Sprint(req.Delta)},
			":m":   &types.AttributeValueMemberN{Value: fmt.Sprint(magnitude)},
			":now": &types.AttributeValueMemberS{Value: now},
		},
	}
}

// AdjustSold applies the delta with a conditional update. With an operation id
// the entry and the counter change are written in one transaction guarded by
// attribute_not_exists on the entry. A compensation id reverses the entry of the
// operation it names, see reverse.
func (r *DynamoLedgerRepository) AdjustSold(ctx context.Context, req reservation.AdjustRequest) error {
	if req.Delta == 0 {
		return nil
	}
	now := r.now().UTC().Format(time.RFC3339)
	upd := r.adjustUpdate(req, now)

	if base, ok := reservation.ReversedOperationID(req.OperationID); ok {
		return r.reverse(ctx, req, base, upd, now)
	}

	if req.OperationID == "" {
		_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 upd.TableName,
			Key:                       upd.Key,
			UpdateExpression:          upd.UpdateExpression,
			ConditionExpression:       upd.ConditionExpression,
			ExpressionAttributeValues: upd.ExpressionAttributeValues,
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				return r.refusal(ctx, req)
			}
			return fmt.Errorf("adjust sold quantity: %w", err)
		}
		return nil
	}

	entry, err := attributevalue.MarshalMap(ddbEntry{
		MenuDate:    req.Date,
		SortKey:     entryKey(req.FoodItemID, req.OperationID),
		ID:          uuid.NewString(),
		FoodItemID:  req.FoodItemID,
		OperationID: req.OperationID,
		OrderID:     req.OrderID,
		Delta:       req.Delta,
		CreatedAt:   now,
	})
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           &r.table,
				Item:                entry,
				ConditionExpression: aws.String("attribute_not_exists(sk)"),
			}},
			{Update: upd},
		},
	})
	if err == nil {
		return nil
	}

	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return fmt.Errorf("adjust sold quantity: %w", err)
	}
	reasons := tce.CancellationReasons
	if len(reasons) > 0 && aws.ToString(reasons[0].Code) == "ConditionalCheckFailed" {
		return nil
	}
	if len(reasons) > 1 && aws.ToString(reasons[1].Code) == "ConditionalCheckFailed" {
		return r.refusal(ctx, req)
	}
	return fmt.Errorf("adjust sold quantity: %w", err)
}

// reverse undoes the applied entry of base. The forward entry is moved to a
// reversed key in the same transaction as the counter change, so a retry of base
// applies again. Without a forward entry there is nothing to undo.
func (r *DynamoLedgerRepository) reverse(ctx context.Context, req reservation.AdjustRequest, base string, upd *types.Update, now string) error {
	forwardKey := r.key(req.Date, entryKey(req.FoodItemID, base))
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &r.table,
		Key:            forwardKey,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil
	}
	var forward ddbEntry
	if err := attributevalue.UnmarshalMap(out.Item, &forward); err != nil {
		return fmt.Errorf("unmarshal ledger entry: %w", err)
	}

	id := uuid.NewString()
	forward.OperationID = base + ":reversed:" + id
	forward.SortKey = entryKey(req.FoodItemID, forward.OperationID)
	moved, err := attributevalue.MarshalMap(forward)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	compensation, err := attributevalue.MarshalMap(ddbEntry{
		MenuDate:    req.Date,
		SortKey:     entryKey(req.FoodItemID, req.OperationID+":"+id),
		ID:          id,
		FoodItemID:  req.FoodItemID,
		OperationID: req.OperationID + ":" + id,
		OrderID:     req.OrderID,
		Delta:       req.Delta,
		CreatedAt:   now,
	})
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:           &r.table,
				Key:                 forwardKey,
				ConditionExpression: aws.String("attribute_exists(sk)"),
			}},
			{Put: &types.Put{TableName: &r.table, Item: moved}},
			{Put: &types.Put{TableName: &r.table, Item: compensation}},
			{Update: upd},
		},
	})
	if err == nil {
		return nil
	}

	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return fmt.Errorf("reverse ledger entry: %w", err)
	}
	reasons := tce.CancellationReasons
	if len(reasons) > 0 && aws.ToString(reasons[0].Code) == "ConditionalCheckFailed" {
		// reversed concurrently
		return nil
	}
	if len(reasons) > 3 && aws.ToString(reasons[3].Code) == "ConditionalCheckFailed" {
		return r.refusal(ctx, req)
	}
	return fmt.Errorf("reverse ledger entry: %w", err)
}

// refusal tells a missing row from an exhausted one after a failed condition.
func (r *DynamoLedgerRepository) refusal(ctx context.Context, req reservation.AdjustRequest) error {
	if _, err := r.Get(ctx, req.Date, req.FoodItemID); err != nil {
		return err
	}
	return ErrInsufficientQuantity
}

func (r *DynamoLedgerRepository) Entries(ctx context.Context, date, foodItemID string) ([]models.LedgerEntry, error) {
	items, err := r.query(ctx, date, "OP#"+foodItemID+"#")
	if err != nil {
		return nil, err
	}
	var raw []ddbEntry
	if err := attributevalue.UnmarshalListOfMaps(items, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal entries: %w", err)
	}
	entries := make([]models.LedgerEntry, 0, len(raw))
	for _, d := range raw {
		e := models.LedgerEntry{
			OperationID: d.OperationID,
			MenuDate:    d.MenuDate,
			FoodItemID:  d.FoodItemID,
			OrderID:     d.OrderID,
			Delta:       d.Delta,
		}
		if id, err := uuid.Parse(d.ID); err == nil {
			e.ID = id
		}
		if t, err := time.Parse(time.RFC3339, d.CreatedAt); err == nil {
			e.CreatedAt = t
		}
		if d.FoodItemID == foodItemID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

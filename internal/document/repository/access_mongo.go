package repository

import (
	"context"
	"errors"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoAccessRepo stores access grants, one record per document and user.
type MongoAccessRepo struct {
	col *mongo.Collection
}

func NewMongoAccessRepo(ctx context.Context, col *mongo.Collection) (*MongoAccessRepo, error) {
	idxModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "documentId", Value: 1}, {Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := col.Indexes().CreateOne(ctx, idxModel); err != nil {
		return nil, err
	}
	return &MongoAccessRepo{col: col}, nil
}

func (m *MongoAccessRepo) Put(ctx context.Context, a *document.Access) error {
	filter := bson.M{"documentId": a.DocumentID, "userId": a.UserID}
	update := bson.M{
		"$set":         bson.M{"role": a.Role, "grantedBy": a.GrantedBy},
		"$setOnInsert": bson.M{"createdAt": a.CreatedAt},
	}
	_, err := m.col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (m *MongoAccessRepo) Get(ctx context.Context, docID, userID string) (*document.Access, error) {
	var a document.Access
	err := m.col.FindOne(ctx, bson.M{"documentId": docID, "userId": userID}).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (m *MongoAccessRepo) List(ctx context.Context, docID string) ([]*document.Access, error) {
	opts := options.Find().SetSort(bson.D{{Key: "userId", Value: 1}})
	cur, err := m.col.Find(ctx, bson.M{"documentId": docID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*document.Access{}
	for cur.Next(ctx) {
		var a document.Access
		if err := cur.Decode(&a); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, cur.Err()
}

func (m *MongoAccessRepo) Delete(ctx context.Context, docID, userID string) error {
	res, err := m.col.DeleteOne(ctx, bson.M{"documentId": docID, "userId": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoAccessRepo) DeleteDocument(ctx context.Context, docID string) error {
	_, err := m.col.DeleteMany(ctx, bson.M{"documentId": docID})
	return err
}

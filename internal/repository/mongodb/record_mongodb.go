// Package mongodb stores records in a MongoDB collection.
//
// Each insert gets a driver-generated ObjectID, which serves as the handle for
// the follow-up append. The record id is an ordinary field, so repeated ids
// produce separate documents.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"recordapi/internal/model"
	"recordapi/internal/repository"
)

// recordDocument is the persisted shape of a model.Record.
type recordDocument struct {
	ObjectID    primitive.ObjectID `bson:"_id,omitempty"`
	ID          string             `bson:"id"`
	UserEmail   string             `bson:"user_email"`
	Institution string             `bson:"institution"`
	Date        time.Time          `bson:"date"`
	Files       []string           `bson:"files"`
}

func (d recordDocument) toModel() model.Record {
	files := d.Files
	if files == nil {
		files = []string{}
	}
	return model.Record{
		ID:            d.ID,
		OwnerEmail:    d.UserEmail,
		Institution:   d.Institution,
		CreatedAt:     d.Date,
		AttachedFiles: files,
	}
}

// RecordMongo is a MongoDB implementation of repository.RecordRepository.
type RecordMongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ repository.RecordRepository = (*RecordMongo)(nil)

// NewRecordMongo creates a repository over coll. client is used for liveness pings.
func NewRecordMongo(client *mongo.Client, coll *mongo.Collection) *RecordMongo {
	return &RecordMongo{client: client, coll: coll}
}

// Ping asks the primary to respond.
func (r *RecordMongo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// Insert stores rec and returns the hex ObjectID of the new document.
func (r *RecordMongo) Insert(ctx context.Context, rec *model.Record) (repository.Handle, error) {
	files := rec.AttachedFiles
	if files == nil {
		files = []string{}
	}
	res, err := r.coll.InsertOne(ctx, recordDocument{
		ID:          rec.ID,
		UserEmail:   rec.OwnerEmail,
		Institution: rec.Institution,
		Date:        rec.CreatedAt,
		Files:       files,
	})
	if err != nil {
		return "", err
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok || oid.IsZero() {
		return "", errors.New("unable to insert data")
	}
	return repository.Handle(oid.Hex()), nil
}

// AppendFilename pushes filename onto the document's files array.
func (r *RecordMongo) AppendFilename(ctx context.Context, h repository.Handle, filename string) error {
	oid, err := primitive.ObjectIDFromHex(string(h))
	if err != nil {
		return fmt.Errorf("invalid handle %q: %w", h, err)
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$push": bson.M{"files": filename}},
	)
	if err != nil {
		return err
	}
	if res.ModifiedCount != 1 {
		return repository.ErrNotModified
	}
	return nil
}

// FindByID returns the oldest document carrying the record id.
func (r *RecordMongo) FindByID(ctx context.Context, id string) (*model.Record, error) {
	var doc recordDocument
	err := r.coll.FindOne(ctx,
		bson.M{"id": id},
		options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	rec := doc.toModel()
	return &rec, nil
}

// List returns records newest first with a total count.
func (r *RecordMongo) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Record], error) {
	total, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(pq.Offset)).
		SetLimit(int64(pq.Limit))
	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	items := make([]model.Record, 0)
	for cur.Next(ctx) {
		var doc recordDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		items = append(items, doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Record]{
		Items: items,
		Total: int(total),
	}, nil
}

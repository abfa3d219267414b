// Package mongo implements the document backend driver on MongoDB.
//
// This is the primary backend in the default configuration: its record
// identifier (an ObjectID hex) becomes the canonical user id, its copy of a
// user wins every read conflict, and its native structures (BSON arrays and
// sub-documents) are the authoritative shape for flags and profile data.
//
// All conversion between BSON documents and model.User goes through the
// record package — no bson.M ever leaves this driver.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/rahat/vulnarena/internal/apperror"
	"github.com/rahat/vulnarena/internal/model"
	"github.com/rahat/vulnarena/internal/repository"
	"github.com/rahat/vulnarena/internal/repository/record"
)

const backendName = "document"

// serverSelectionTimeout bounds how long the driver waits for a reachable
// mongod before an operation is classified as ErrUnavailable. The coordinator
// imposes no cross-backend deadline of its own — this is the only thing
// standing between an outage and a hung request.
const serverSelectionTimeout = 5 * time.Second

// Driver is the document half of the dual store.
type Driver struct {
	uri    string
	dbName string
	logger *slog.Logger

	mu     sync.Mutex
	client *mongo.Client
	users  *mongo.Collection
}

// compile-time check that *Driver implements repository.Driver
var _ repository.Driver = (*Driver)(nil)

// New creates an unconnected driver for the given MongoDB URI and database.
func New(uri, dbName string, logger *slog.Logger) *Driver {
	return &Driver{uri: uri, dbName: dbName, logger: logger}
}

// Name implements repository.Driver.
func (d *Driver) Name() string { return backendName }

// EnsureConnected establishes the client session, verifies the server is
// reachable, and ensures the unique indexes exist. Idempotent: repeated
// calls after the first success are no-ops and open no further connections.
func (d *Driver) EnsureConnected(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return nil
	}

	opts := options.Client().
		ApplyURI(d.uri).
		SetServerSelectionTimeout(serverSelectionTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return apperror.Unavailable(backendName, fmt.Errorf("connecting: %w", err))
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return apperror.Unavailable(backendName, fmt.Errorf("pinging: %w", err))
	}

	users := client.Database(d.dbName).Collection("users")

	// username and email are unique within this backend independently of
	// the relational store's constraints.
	_, err = users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return apperror.Unavailable(backendName, fmt.Errorf("ensuring indexes: %w", err))
	}

	d.client = client
	d.users = users
	d.logger.Info("document backend connected", slog.String("database", d.dbName))
	return nil
}

// Close tears the client session down. Safe on a never-connected driver.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return nil
	}
	err := d.client.Disconnect(ctx)
	d.client = nil
	d.users = nil
	return err
}

func (d *Driver) collection() (*mongo.Collection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.users == nil {
		return nil, apperror.Unavailable(backendName, errors.New("not connected"))
	}
	return d.users, nil
}

// fieldNames maps canonical lookup fields to document field names.
var fieldNames = map[string]string{
	repository.FieldID:       "_id",
	repository.FieldUsername: "username",
	repository.FieldEmail:    "email",
}

// Create inserts a new user document.
//
// If user.ID is empty the backend assigns a fresh ObjectID hex — this is the
// id the coordinator adopts as canonical when the document store is primary.
// A pre-set id (canonical id determined elsewhere) is stored verbatim.
func (d *Driver) Create(ctx context.Context, user *model.User) (string, error) {
	users, err := d.collection()
	if err != nil {
		return "", err
	}

	doc := record.FromUser(user)
	if doc.ID == "" {
		doc.ID = primitive.NewObjectID().Hex()
	}

	if _, err := users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", apperror.Conflict("user", user.Username)
		}
		if isUnreachable(err) {
			return "", apperror.Unavailable(backendName, err)
		}
		return "", fmt.Errorf("mongo: inserting user %s: %w", user.Username, err)
	}

	return doc.ID, nil
}

// FindByField implements the single-record lookup. Returns (nil, nil) on miss.
func (d *Driver) FindByField(ctx context.Context, field, value string) (*model.User, error) {
	users, err := d.collection()
	if err != nil {
		return nil, err
	}

	name, ok := fieldNames[field]
	if !ok {
		return nil, fmt.Errorf("mongo: unsupported lookup field %q", field)
	}

	var doc record.Document
	err = users.FindOne(ctx, bson.M{name: value}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // miss, not an error
		}
		if isUnreachable(err) {
			return nil, apperror.Unavailable(backendName, err)
		}
		return nil, fmt.Errorf("mongo: finding user by %s: %w", field, err)
	}

	return doc.User(), nil
}

// UpdateField sets one mutable field with $set.
func (d *Driver) UpdateField(ctx context.Context, id, field string, value any) error {
	users, err := d.collection()
	if err != nil {
		return err
	}

	var name string
	var stored any

	switch field {
	case repository.FieldLastLogin:
		t, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("mongo: last_login expects time.Time, got %T", value)
		}
		name, stored = "last_login", record.NormalizeTime(t)

	case repository.FieldFlags:
		flags, ok := value.([]string)
		if !ok {
			return fmt.Errorf("mongo: flags_found expects []string, got %T", value)
		}
		name, stored = "flags_found", flags

	case repository.FieldProfile:
		profile, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("mongo: profile expects map[string]any, got %T", value)
		}
		name, stored = "profile", profile

	default:
		return fmt.Errorf("mongo: unsupported update field %q", field)
	}

	res, err := users.UpdateByID(ctx, id, bson.M{"$set": bson.M{name: stored}})
	if err != nil {
		if isUnreachable(err) {
			return apperror.Unavailable(backendName, err)
		}
		return fmt.Errorf("mongo: updating %s for user %s: %w", field, id, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// Search matches term against username and email as a case-insensitive
// regular expression — Mongo's native pattern matching. The term is passed
// through as the pattern itself, consistent with the backend-native search
// contract.
func (d *Driver) Search(ctx context.Context, term string) ([]model.User, error) {
	users, err := d.collection()
	if err != nil {
		return nil, err
	}

	pattern := primitive.Regex{Pattern: term, Options: "i"}
	cursor, err := users.Find(ctx, bson.M{"$or": []bson.M{
		{"username": pattern},
		{"email": pattern},
	}})
	if err != nil {
		if isUnreachable(err) {
			return nil, apperror.Unavailable(backendName, err)
		}
		return nil, fmt.Errorf("mongo: searching users: %w", err)
	}

	var docs []record.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: reading search results: %w", err)
	}

	results := make([]model.User, 0, len(docs))
	for _, doc := range docs {
		results = append(results, *doc.User())
	}
	return results, nil
}

// isUnreachable classifies driver errors that mean "the backend cannot be
// talked to right now" — the class that triggers fallback rather than
// surfacing to the caller.
func isUnreachable(err error) bool {
	return mongo.IsTimeout(err) || mongo.IsNetworkError(err) ||
		errors.Is(err, context.DeadlineExceeded)
}

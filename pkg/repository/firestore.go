package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const collectionKV = "kv"

// Firestore stores each key as a document of a single collection, so state can follow
// the user across machines
type Firestore struct {
	client    *firestore.Client
	namespace string
}

type kvDocument struct {
	Value string `firestore:"value"`
}

// NewFirestore connects to databaseID of projectID. namespace isolates users sharing a database.
func NewFirestore(ctx context.Context, projectID, databaseID, namespace string, opts ...option.ClientOption) (*Firestore, error) {
	if projectID == "" {
		return nil, goerr.New("project is required")
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}
	if namespace == "" {
		namespace = "default"
	}
	return &Firestore{client: client, namespace: namespace}, nil
}

func (r *Firestore) collection() *firestore.CollectionRef {
	return r.client.Collection("chatterbox").Doc(r.namespace).Collection(collectionKV)
}

func (r *Firestore) Get(ctx context.Context, key string) (string, bool, error) {
	snap, err := r.collection().Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, goerr.Wrap(err, "failed to get document", goerr.V("key", key))
	}

	var doc kvDocument
	if err := snap.DataTo(&doc); err != nil {
		return "", false, goerr.Wrap(err, "failed to decode document", goerr.V("key", key))
	}
	return doc.Value, true, nil
}

func (r *Firestore) Set(ctx context.Context, key, value string) error {
	if _, err := r.collection().Doc(key).Set(ctx, kvDocument{Value: value}); err != nil {
		return goerr.Wrap(err, "failed to set document", goerr.V("key", key))
	}
	return nil
}

func (r *Firestore) Delete(ctx context.Context, key string) error {
	if _, err := r.collection().Doc(key).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete document", goerr.V("key", key))
	}
	return nil
}

func (r *Firestore) Clear(ctx context.Context) error {
	docs, err := r.collection().Documents(ctx).GetAll()
	if err != nil {
		return goerr.Wrap(err, "failed to list documents")
	}
	for _, doc := range docs {
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return goerr.Wrap(err, "failed to delete document", goerr.V("key", doc.Ref.ID))
		}
	}
	return nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/WuVi5054/mentor-ai/pkg/relay"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCollection = "conversation_records"

// FirestoreStore implements Store using Google Cloud Firestore, one
// document per record.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	mu         sync.RWMutex
	closed     bool
}

// FirestoreConfig holds Firestore configuration.
type FirestoreConfig struct {
	// ProjectID is the GCP project (required).
	ProjectID string
	// CredentialsFile points at service account credentials; when empty,
	// Application Default Credentials are used.
	CredentialsFile string
	// Collection overrides the Firestore collection name.
	Collection string
}

type firestoreDoc struct {
	Envelope
	UserID string `firestore:"userId"`
}

// NewFirestoreStore creates a Firestore record store.
func NewFirestoreStore(ctx context.Context, cfg FirestoreConfig) (*FirestoreStore, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("project ID is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = defaultCollection
	}

	return &FirestoreStore{client: client, collection: collection}, nil
}

func (s *FirestoreStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *FirestoreStore) doc(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

// Save persists a record envelope.
func (s *FirestoreStore) Save(ctx context.Context, rec *relay.Record, delivered bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	doc := firestoreDoc{
		Envelope: Envelope{Record: rec, Delivered: delivered, UpdatedAt: time.Now().UTC()},
		UserID:   rec.UserID,
	}
	if _, err := s.doc(rec.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// Pending returns undelivered records, oldest first.
func (s *FirestoreStore) Pending(ctx context.Context) ([]*relay.Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.query(ctx, s.client.Collection(s.collection).Where("Delivered", "==", false))
}

// MarkDelivered flags a record as delivered.
func (s *FirestoreStore) MarkDelivered(ctx context.Context, recordID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.doc(recordID).Update(ctx, []firestore.Update{
		{Path: "Delivered", Value: true},
		{Path: "UpdatedAt", Value: time.Now().UTC()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrRecordNotFound
		}
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// History returns all records for a user, oldest first.
func (s *FirestoreStore) History(ctx context.Context, userID string) ([]*relay.Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.query(ctx, s.client.Collection(s.collection).Where("userId", "==", userID))
}

// Close releases the Firestore client.
func (s *FirestoreStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

func (s *FirestoreStore) query(ctx context.Context, q firestore.Query) ([]*relay.Record, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var recs []*relay.Record
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate records: %w", err)
		}

		var doc firestoreDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", snap.Ref.ID, err)
		}
		recs = append(recs, doc.Record)
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CapturedAt.Before(recs[j].CapturedAt)
	})
	return recs, nil
}

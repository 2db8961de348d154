package docstore

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type firestoreStore struct {
	client *firestore.Client
	log    *logger.Logger
}

// OpenFirestore connects to projectID. FIRESTORE_EMULATOR_HOST is honoured
// by the client library.
func OpenFirestore(ctx context.Context, baseLog *logger.Logger, projectID string, opts ...option.ClientOption) (Store, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &firestoreStore{client: client, log: logger.OrNop(baseLog).With("repo", "FirestoreDocumentRepo")}, nil
}

func (s *firestoreStore) Collection(name string) Collection {
	return &firestoreCollection{store: s, ref: s.client.Collection(name)}
}

func (s *firestoreStore) Close() error { return s.client.Close() }

type firestoreCollection struct {
	store *firestoreStore
	ref   *firestore.CollectionRef
}

func (c *firestoreCollection) Get(ctx context.Context, id string) (map[string]any, error) {
	snap, err := c.ref.Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", c.ref.ID, id, err)
	}
	return snap.Data(), nil
}

func (c *firestoreCollection) Set(ctx context.Context, id string, data map[string]any) error {
	if _, err := c.ref.Doc(id).Set(ctx, data); err != nil {
		return fmt.Errorf("set %s/%s: %w", c.ref.ID, id, err)
	}
	return nil
}

func (c *firestoreCollection) Delete(ctx context.Context, id string) error {
	if _, err := c.ref.Doc(id).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("delete %s/%s: %w", c.ref.ID, id, err)
	}
	return nil
}

func (c *firestoreCollection) Query(ctx context.Context, field, op string, value any) ([]Doc, error) {
	if err := checkOp(op); err != nil {
		return nil, err
	}
	iter := c.ref.Where(field, op, value).Documents(ctx)
	defer iter.Stop()
	var out []Doc
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", c.ref.ID, err)
		}
		out = append(out, Doc{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return out, nil
}

// Batch uses a BulkWriter; writes are not atomic across documents.
func (c *firestoreCollection) Batch(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	bw := c.store.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(writes))
	for _, w := range writes {
		doc := c.ref.Doc(w.ID)
		var (
			job *firestore.BulkWriterJob
			err error
		)
		if w.Data == nil {
			job, err = bw.Delete(doc)
		} else {
			job, err = bw.Set(doc, w.Data)
		}
		if err != nil {
			bw.End()
			return fmt.Errorf("batch %s/%s: %w", c.ref.ID, w.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()
	for i, j := range jobs {
		if _, err := j.Results(); err != nil && status.Code(err) != codes.NotFound {
			return fmt.Errorf("batch %s/%s: %w", c.ref.ID, writes[i].ID, err)
		}
	}
	return nil
}

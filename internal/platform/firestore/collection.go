package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Codec converts between a domain entity and its Firestore document form.
type Codec[T any, D any] struct {
	Encode func(T) D
	Decode func(id string, doc D) T
}

// Collection provides typed access to a single Firestore collection.
type Collection[T any, D any] struct {
	provider *Provider
	name     string
	codec    Codec[T, D]
}

// NewCollection binds a typed collection to the provider.
func NewCollection[T any, D any](provider *Provider, name string, codec Codec[T, D]) *Collection[T, D] {
	return &Collection[T, D]{provider: provider, name: strings.TrimSpace(name), codec: codec}
}

// Name returns the collection path.
func (c *Collection[T, D]) Name() string { return c.name }

// Create writes a new document and fails with a conflict when the ID is taken.
func (c *Collection[T, D]) Create(ctx context.Context, id string, value T) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, c.codec.Encode(value))
	return WrapError(c.op("create"), err)
}

// Set upserts the document.
func (c *Collection[T, D]) Set(ctx context.Context, id string, value T) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, c.codec.Encode(value))
	return WrapError(c.op("set"), err)
}

// Get loads and decodes a document.
func (c *Collection[T, D]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return zero, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return zero, WrapError(c.op("get"), err)
	}
	return c.DecodeSnapshot(snap)
}

// Query runs the query produced by build and decodes every result.
func (c *Collection[T, D]) Query(ctx context.Context, build func(firestore.Query) firestore.Query) ([]T, error) {
	ref, err := c.ref(ctx)
	if err != nil {
		return nil, err
	}
	query := ref.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	out := make([]T, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		value, err := c.DecodeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, value)
	}
}

// Doc returns the reference for id within the collection.
func (c *Collection[T, D]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%s: document id is required", c.op("doc"))
	}
	ref, err := c.ref(ctx)
	if err != nil {
		return nil, err
	}
	return ref.Doc(id), nil
}

// DecodeSnapshot converts a raw snapshot into the entity.
func (c *Collection[T, D]) DecodeSnapshot(snap *firestore.DocumentSnapshot) (T, error) {
	var (
		zero T
		doc  D
	)
	if err := snap.DataTo(&doc); err != nil {
		return zero, fmt.Errorf("%s: decode %s: %w", c.op("decode"), snap.Ref.ID, err)
	}
	return c.codec.Decode(snap.Ref.ID, doc), nil
}

func (c *Collection[T, D]) ref(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, errors.New("firestore: provider is nil")
	}
	if c.name == "" {
		return nil, errors.New("firestore: collection name is required")
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

func (c *Collection[T, D]) op(action string) string {
	return c.name + "." + action
}

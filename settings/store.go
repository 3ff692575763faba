// Package settings provides read/modify/write access to per-entity
// configuration documents. Modifications of the same document are serialised
// through a keyed lock; different documents never wait on each other.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/pretty"

	"github.com/nicebartender/claudio-bot/keylock"
)

var ErrNotFound = errors.New("settings: document not found")

// Document is implemented by every stored settings type. Kind names the
// collection the document lives in; the entity id is its key within it.
type Document interface {
	Kind() string
	EntityID() uint64
	SetEntityID(id uint64)
}

// Doc constrains a type parameter to a pointer to a Document struct.
type Doc[T any] interface {
	*T
	Document
}

// Backend is the persistence collaborator. Find returns a nil body and a nil
// error when nothing is stored for the key.
type Backend interface {
	Find(ctx context.Context, kind string, id uint64) ([]byte, error)
	FindAll(ctx context.Context, kind string) ([][]byte, error)
	Upsert(ctx context.Context, kind string, id uint64, body []byte) error
	Kinds(ctx context.Context) ([]string, error)
}

// Factory builds the default document for an entity seen for the first time.
// Returning a nil Document selects the zero value of the requested type.
type Factory interface {
	Create(ctx context.Context, kind string) (Document, error)
}

type FactoryFunc func(ctx context.Context, kind string) (Document, error)

func (f FactoryFunc) Create(ctx context.Context, kind string) (Document, error) {
	return f(ctx, kind)
}

type Store struct {
	backend Backend
	factory Factory
	locks   *keylock.Table[keylock.Key]
}

// New returns a store over backend. factory may be nil; locks may be shared
// with other stores over the same backend.
func New(backend Backend, factory Factory, locks *keylock.Table[keylock.Key]) *Store {
	if locks == nil {
		locks = keylock.New[keylock.Key]()
	}
	return &Store{backend: backend, factory: factory, locks: locks}
}

// Read returns the document of type T for id, creating and persisting a
// default one if none is stored yet.
func Read[T any, PT Doc[T]](ctx context.Context, s *Store, id uint64) (PT, error) {
	kind := PT(new(T)).Kind()
	doc, ok, err := load[T, PT](ctx, s, kind, id)
	if err != nil || ok {
		return doc, err
	}

	release, err := s.locks.Acquire(ctx, keylock.Key{Kind: kind, ID: id})
	if err != nil {
		return nil, err
	}
	defer release()

	// Someone may have written it while we waited.
	doc, ok, err = load[T, PT](ctx, s, kind, id)
	if err != nil || ok {
		return doc, err
	}
	if doc, err = create[T, PT](ctx, s, kind, id); err != nil {
		return nil, err
	}
	if err := save(ctx, s, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Find returns the stored document of type T for id, or ErrNotFound.
func Find[T any, PT Doc[T]](ctx context.Context, s *Store, id uint64) (PT, error) {
	kind := PT(new(T)).Kind()
	doc, ok, err := load[T, PT](ctx, s, kind, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s/%d: %w", kind, id, ErrNotFound)
	}
	return doc, nil
}

// ReadAll returns every stored document of type T.
func ReadAll[T any, PT Doc[T]](ctx context.Context, s *Store) ([]PT, error) {
	kind := PT(new(T)).Kind()
	bodies, err := s.backend.FindAll(ctx, kind)
	if err != nil {
		return nil, err
	}

	docs := make([]PT, 0, len(bodies))
	for _, body := range bodies {
		doc := PT(new(T))
		if err := json.Unmarshal(body, doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Modify runs fn on the document for id while holding its lock and persists
// the result. If fn fails nothing is written.
func Modify[T any, PT Doc[T]](ctx context.Context, s *Store, id uint64, fn func(PT) error) error {
	_, err := ModifyResult[T, PT, struct{}](ctx, s, id, func(doc PT) (struct{}, error) {
		return struct{}{}, fn(doc)
	})
	return err
}

// ModifyResult is Modify for mutators that produce a value.
//
// fn must not call Modify for the same document; the lock is not re-entrant.
func ModifyResult[T any, PT Doc[T], U any](ctx context.Context, s *Store, id uint64, fn func(PT) (U, error)) (U, error) {
	var zero U
	kind := PT(new(T)).Kind()

	release, err := s.locks.Acquire(ctx, keylock.Key{Kind: kind, ID: id})
	if err != nil {
		return zero, err
	}
	defer release()

	doc, ok, err := load[T, PT](ctx, s, kind, id)
	if err != nil {
		return zero, err
	}
	if !ok {
		if doc, err = create[T, PT](ctx, s, kind, id); err != nil {
			return zero, err
		}
	}

	result, err := fn(doc)
	if err != nil {
		return zero, err
	}
	if err := save(ctx, s, doc); err != nil {
		return zero, err
	}
	return result, nil
}

// Dump renders every stored document belonging to id, grouped by kind.
// A kind that cannot be read is noted in the output and skipped.
func (s *Store) Dump(ctx context.Context, id uint64) (string, error) {
	kinds, err := s.backend.Kinds(ctx)
	if err != nil {
		return "", fmt.Errorf("list kinds: %w", err)
	}

	var b strings.Builder
	for _, kind := range kinds {
		body, err := s.backend.Find(ctx, kind, id)
		if err != nil {
			slog.Warn("dump: read failed", "kind", kind, "id", id, "err", err)
			fmt.Fprintf(&b, "%s:\n(unreadable: %v)\n\n", kind, err)
			continue
		}
		if body == nil {
			continue
		}
		fmt.Fprintf(&b, "%s:\n%s\n", kind, pretty.Pretty(body))
	}
	return b.String(), nil
}

func load[T any, PT Doc[T]](ctx context.Context, s *Store, kind string, id uint64) (PT, bool, error) {
	body, err := s.backend.Find(ctx, kind, id)
	if err != nil {
		return nil, false, err
	}
	if body == nil {
		return nil, false, nil
	}

	doc := PT(new(T))
	if err := json.Unmarshal(body, doc); err != nil {
		return nil, false, fmt.Errorf("decode %s/%d: %w", kind, id, err)
	}
	doc.SetEntityID(id)
	return doc, true, nil
}

func create[T any, PT Doc[T]](ctx context.Context, s *Store, kind string, id uint64) (PT, error) {
	doc := PT(new(T))
	if s.factory != nil {
		created, err := s.factory.Create(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", kind, err)
		}
		if created != nil {
			typed, ok := created.(PT)
			if !ok {
				return nil, fmt.Errorf("create %s: factory returned %T", kind, created)
			}
			doc = typed
		}
	}
	doc.SetEntityID(id)
	return doc, nil
}

func save(ctx context.Context, s *Store, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%d: %w", doc.Kind(), doc.EntityID(), err)
	}
	return s.backend.Upsert(ctx, doc.Kind(), doc.EntityID(), body)
}

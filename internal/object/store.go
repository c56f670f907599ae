// Package object persists the driver's scripted objects and the per-callout
// dataspace: the method names and arguments that are rehydrated when a
// callout fires. The scheduler itself never sees either; it holds only
// (object id, handle) pairs.
package object

import (
	"context"

	"github.com/me/mudd/pkg/model"
)

// Store defines the persistence layer for objects and callout records.
type Store interface {
	// Object CRUD
	CreateObject(ctx context.Context, obj *model.Object) error
	GetObject(ctx context.Context, id uint16) (*model.Object, error)
	GetObjectByName(ctx context.Context, name string) (*model.Object, error)
	ListObjects(ctx context.Context) ([]*model.Object, error)
	CountObjects(ctx context.Context) (int, error)

	// NextHandle allocates the next callout handle for an object. Handles
	// wrap at 65535 and never yield 0.
	NextHandle(ctx context.Context, objID uint16) (uint16, error)

	// Callout dataspace
	PutCallout(ctx context.Context, rec *model.CalloutRecord) error
	GetCallout(ctx context.Context, objID, handle uint16) (*model.CalloutRecord, error)
	DeleteCallout(ctx context.Context, objID, handle uint16) error
	DeleteAllCallouts(ctx context.Context) (int64, error)
	ListCallouts(ctx context.Context) ([]*model.CalloutRecord, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

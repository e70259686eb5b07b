package domain

import (
	"context"
)

type Collection struct {
	// Name identifies the backing document.
	Name string
	// IDField is the record key that must be unique within the collection.
	IDField string
	// Noun is used in error messages ("app not found").
	Noun string
}

var (
	Apps  = Collection{Name: "apps", IDField: "app_id", Noun: "app"}
	Users = Collection{Name: "users", IDField: "user_id", Noun: "user"}
)

// DocumentRepository loads and overwrites whole collection documents.
// A document that does not exist yet loads as an empty collection.
type DocumentRepository interface {
	Load(ctx context.Context, name string) ([]Record, error)
	Save(ctx context.Context, name string, records []Record) error
}

// DocumentModifier is implemented by repositories that can run a
// read-modify-write cycle atomically on their own, e.g. inside a transaction.
// Returning an error from fn aborts the cycle without writing.
type DocumentModifier interface {
	Modify(ctx context.Context, name string, fn func([]Record) ([]Record, error)) error
}

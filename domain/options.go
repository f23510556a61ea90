package domain

import "go.mongodb.org/mongo-driver/mongo/writeconcern"

// WithWriteConcern overrides the write concern of a single save, insert,
// merge or entity delete.
func WithWriteConcern(wc *writeconcern.WriteConcern) WriteOption {
	return func(wo *WriteOptions) {
		wo.WriteConcern = wc
	}
}

// WriteOption configures entity writes through the functional options
// pattern.
type WriteOption func(*WriteOptions)

// WriteOptions contains parameters for customizing entity writes.
type WriteOptions struct {
	// WriteConcern overrides the entity and datastore write concerns.
	WriteConcern *writeconcern.WriteConcern
}

// WithUpdateMulti sets whether every matching document is updated. Defaults
// to true.
func WithUpdateMulti(m bool) UpdateOption {
	return func(uo *UpdateOptions) {
		uo.Multi = m
	}
}

// WithUpsert enables inserting a document if no matches are found.
func WithUpsert(u bool) UpdateOption {
	return func(uo *UpdateOptions) {
		uo.Upsert = u
	}
}

// WithUpdateWriteConcern overrides the write concern of an update.
func WithUpdateWriteConcern(wc *writeconcern.WriteConcern) UpdateOption {
	return func(uo *UpdateOptions) {
		uo.WriteConcern = wc
	}
}

// UpdateOption configures update behavior through the functional options
// pattern.
type UpdateOption func(*UpdateOptions)

// UpdateOptions contains parameters for customizing update operations.
type UpdateOptions struct {
	// Multi enables updating every document that matches the query.
	Multi bool
	// Upsert enables inserting a document if no matches are found.
	Upsert bool
	// WriteConcern overrides the entity and datastore write concerns.
	WriteConcern *writeconcern.WriteConcern
}

// WithDeleteMulti sets whether every matching document is removed. Defaults
// to true.
func WithDeleteMulti(m bool) DeleteOption {
	return func(do *DeleteOptions) {
		do.Multi = m
	}
}

// WithDeleteWriteConcern overrides the write concern of a delete.
func WithDeleteWriteConcern(wc *writeconcern.WriteConcern) DeleteOption {
	return func(do *DeleteOptions) {
		do.WriteConcern = wc
	}
}

// DeleteOption configures delete behavior through the functional options
// pattern.
type DeleteOption func(*DeleteOptions)

// DeleteOptions contains parameters for customizing delete operations.
type DeleteOptions struct {
	// Multi enables removing every document that matches the query.
	Multi bool
	// WriteConcern overrides the entity and datastore write concerns.
	WriteConcern *writeconcern.WriteConcern
}

// WithReturnNew sets whether find-and-modify returns the document after the
// update. Defaults to true.
func WithReturnNew(r bool) FindAndModifyOption {
	return func(fo *FindAndModifyOptions) {
		fo.ReturnNew = r
	}
}

// WithFindAndModifyUpsert enables inserting a document if no matches are
// found.
func WithFindAndModifyUpsert(u bool) FindAndModifyOption {
	return func(fo *FindAndModifyOptions) {
		fo.Upsert = u
	}
}

// WithFindAndModifyWriteConcern overrides the write concern of a
// find-and-modify.
func WithFindAndModifyWriteConcern(wc *writeconcern.WriteConcern) FindAndModifyOption {
	return func(fo *FindAndModifyOptions) {
		fo.WriteConcern = wc
	}
}

// FindAndModifyOption configures find-and-modify behavior through the
// functional options pattern.
type FindAndModifyOption func(*FindAndModifyOptions)

// FindAndModifyOptions contains parameters for customizing find-and-modify
// operations.
type FindAndModifyOptions struct {
	// ReturnNew returns the updated document instead of the original.
	ReturnNew bool
	// Upsert enables inserting a document if no matches are found.
	Upsert bool
	// WriteConcern overrides the entity and datastore write concerns.
	WriteConcern *writeconcern.WriteConcern
}

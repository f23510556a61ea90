package memdb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/structure"
)

type command func(ctx context.Context, cmd domain.Document) (bson.D, error)

// RunCommand implements [domain.Database]. The supported commands are ping,
// create, drop, count, collMod and collStats; any other command fails with
// CommandNotFound wrapping [domain.ErrUnsupported].
func (db *Database) RunCommand(ctx context.Context, cmd any) *mongo.SingleResult {
	res, err := db.runCommand(ctx, cmd)
	if err != nil {
		return errResult(err)
	}
	return mongo.NewSingleResultFromDocument(res, nil, nil)
}

func (db *Database) runCommand(ctx context.Context, cmd any) (bson.D, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := db.docFac(cmd)
	if err != nil {
		return nil, err
	}
	var name string
	for k := range d.Keys() {
		name = k
		break
	}

	commands := map[string]command{
		"ping":      db.ping,
		"create":    db.create,
		"drop":      db.drop,
		"count":     db.count,
		"collMod":   db.collMod,
		"collStats": db.collStats,
	}
	fn, ok := commands[name]
	if !ok {
		return nil, commandError(CodeCommandNotFound, "CommandNotFound",
			fmt.Errorf("%w: no such command: '%s'", domain.ErrUnsupported, name))
	}
	return fn(ctx, d)
}

func reply(fields ...bson.E) bson.D {
	return append(bson.D(fields), bson.E{Key: "ok", Value: 1.0})
}

func (db *Database) ping(context.Context, domain.Document) (bson.D, error) {
	return reply(), nil
}

func (db *Database) create(ctx context.Context, cmd domain.Document) (bson.D, error) {
	name, err := collectionName(cmd, "create")
	if err != nil {
		return nil, err
	}
	if err := db.CreateCollection(ctx, name, createOptions(cmd)); err != nil {
		return nil, err
	}
	return reply(), nil
}

func (db *Database) drop(ctx context.Context, cmd domain.Document) (bson.D, error) {
	name, err := collectionName(cmd, "drop")
	if err != nil {
		return nil, err
	}

	if err := db.mu.Lock(ctx); err != nil {
		return nil, err
	}
	defer db.mu.Unlock()

	s, found := db.collections[name]
	if !found {
		return nil, commandError(CodeNamespaceNotFound, "NamespaceNotFound", errNotFound)
	}
	delete(db.collections, name)
	return reply(
		bson.E{Key: "nIndexesWas", Value: int32(len(s.indexes))},
		bson.E{Key: "ns", Value: s.ns},
	), nil
}

func (db *Database) count(ctx context.Context, cmd domain.Document) (bson.D, error) {
	name, err := collectionName(cmd, "count")
	if err != nil {
		return nil, err
	}
	c := &Collection{db: db, name: name}
	skip, _ := structure.AsInt64(cmd.Get("skip"))
	limit, _ := structure.AsInt64(cmd.Get("limit"))

	if err := db.mu.RLock(ctx); err != nil {
		return nil, err
	}
	defer db.mu.RUnlock()

	var filter any
	if q := cmd.D("query"); q != nil {
		filter = q
	}
	docs, err := c.find(db.collections[name], filter, nil, skip, limit)
	if err != nil {
		return nil, err
	}
	return reply(bson.E{Key: "n", Value: int32(len(docs))}), nil
}

// collMod changes the validator of an existing collection. Documents already
// stored are not checked again.
func (db *Database) collMod(ctx context.Context, cmd domain.Document) (bson.D, error) {
	name, err := collectionName(cmd, "collMod")
	if err != nil {
		return nil, err
	}

	if err := db.mu.Lock(ctx); err != nil {
		return nil, err
	}
	defer db.mu.Unlock()

	s, found := db.collections[name]
	if !found {
		return nil, commandError(CodeNamespaceNotFound, "NamespaceNotFound", errNotFound)
	}

	var validator any
	if cmd.Has("validator") {
		validator = cmd.Get("validator")
		if validator == nil {
			validator = bson.D{}
		}
	}
	var level, action *string
	if l, isStr := cmd.Get("validationLevel").(string); isStr {
		level = &l
	}
	if a, isStr := cmd.Get("validationAction").(string); isStr {
		action = &a
	}

	next := *s
	if err := next.setValidation(validator, level, action); err != nil {
		return nil, err
	}
	s.validator, s.validationLevel, s.validationAction = next.validator, next.validationLevel, next.validationAction
	db.log.Debug("collection modified", "ns", s.ns, "validationLevel", s.validationLevel,
		"validationAction", s.validationAction)
	return reply(), nil
}

func (db *Database) collStats(ctx context.Context, cmd domain.Document) (bson.D, error) {
	name, err := collectionName(cmd, "collStats")
	if err != nil {
		return nil, err
	}

	if err := db.mu.RLock(ctx); err != nil {
		return nil, err
	}
	defer db.mu.RUnlock()

	s, found := db.collections[name]
	if !found {
		return nil, commandError(CodeNamespaceNotFound, "NamespaceNotFound",
			fmt.Errorf("%w: %s.%s", errNotFound, db.name, name))
	}
	size, err := s.dataSize()
	if err != nil {
		return nil, err
	}
	var avg int64
	if len(s.docs) > 0 {
		avg = size / int64(len(s.docs))
	}

	stats := bson.D{
		{Key: "ns", Value: s.ns},
		{Key: "count", Value: int64(len(s.docs))},
		{Key: "size", Value: size},
		{Key: "avgObjSize", Value: avg},
		{Key: "nindexes", Value: int32(len(s.indexes))},
		{Key: "capped", Value: s.capped},
	}
	if s.capped {
		stats = append(stats, bson.E{Key: "maxSize", Value: s.maxSize})
		if s.maxDocs > 0 {
			stats = append(stats, bson.E{Key: "max", Value: s.maxDocs})
		}
	}
	return reply(stats...), nil
}

func collectionName(cmd domain.Document, command string) (string, error) {
	name, isStr := cmd.Get(command).(string)
	if !isStr || name == "" {
		return "", commandError(CodeBadValue, "BadValue",
			errors.New(command+" expects a collection name"))
	}
	return name, nil
}

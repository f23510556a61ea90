package memdb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/dolmen-go/contextio"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/structure"
)

// maxLine is the longest snapshot line Restore accepts, enough for a
// document of the maximum BSON size encoded as extended JSON.
const maxLine = 64 << 20

// ErrCorruptSnapshot is returned by [Database.Restore] for lines that cannot
// be decoded or restored.
type ErrCorruptSnapshot struct {
	Line int
	Err  error
}

func (e ErrCorruptSnapshot) Error() string {
	return fmt.Sprintf("corrupt snapshot at line %d: %v", e.Line, e.Err)
}

func (e ErrCorruptSnapshot) Unwrap() error {
	return e.Err
}

// Dump writes every collection to w as canonical extended JSON, one value per
// line. Each collection starts with a header holding its options and
// indexes, followed by its documents in natural order.
func (db *Database) Dump(ctx context.Context, w io.Writer) error {
	if err := db.mu.RLock(ctx); err != nil {
		return err
	}
	defer db.mu.RUnlock()

	wr := bufio.NewWriter(contextio.NewWriter(ctx, w))
	for _, name := range slices.Sorted(maps.Keys(db.collections)) {
		s := db.collections[name]

		indexes := bson.A{}
		for _, i := range s.indexes[1:] {
			indexes = append(indexes, i.spec())
		}
		header := bson.D{
			{Key: "collection", Value: name},
			{Key: "options", Value: s.options()},
			{Key: "indexes", Value: indexes},
		}
		if err := writeLine(wr, header); err != nil {
			return err
		}

		for _, d := range s.docs {
			if err := writeLine(wr, bson.D{{Key: "collection", Value: name}, {Key: "document", Value: d}}); err != nil {
				return err
			}
		}
	}
	return wr.Flush()
}

func writeLine(w io.Writer, v bson.D) error {
	b, err := bson.MarshalExtJSON(v, true, false)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// Restore replaces the content of the database with a snapshot written by
// [Database.Dump]. The current content is kept if the snapshot cannot be
// read or rebuilt.
func (db *Database) Restore(ctx context.Context, r io.Reader) error {
	collections := make(map[string]*store)

	lines := bufio.NewScanner(contextio.NewReader(ctx, r))
	lines.Buffer(make([]byte, 0, 64<<10), maxLine)
	n := 0
	for lines.Scan() {
		n++
		line := lines.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := db.restoreLine(collections, line); err != nil {
			return ErrCorruptSnapshot{Line: n, Err: err}
		}
	}
	if err := lines.Err(); err != nil {
		return err
	}

	if err := db.mu.Lock(ctx); err != nil {
		return err
	}
	defer db.mu.Unlock()
	db.collections = collections
	db.log.Info("database restored", "db", db.name, "collections", len(collections))
	return nil
}

func (db *Database) restoreLine(collections map[string]*store, line []byte) error {
	var raw bson.D
	if err := bson.UnmarshalExtJSON(line, true, &raw); err != nil {
		return err
	}
	entry, err := db.docFac(raw)
	if err != nil {
		return err
	}
	name, isStr := entry.Get("collection").(string)
	if !isStr || name == "" {
		return errors.New("missing collection name")
	}

	if doc := entry.D("document"); doc != nil {
		s, found := collections[name]
		if !found {
			return fmt.Errorf("document before the header of %s", name)
		}
		return s.insert(doc, true)
	}

	if _, found := collections[name]; found {
		return fmt.Errorf("duplicate header of %s", name)
	}
	s, err := db.newStore(name, createOptions(entry.D("options")))
	if err != nil {
		return err
	}
	specs, _ := entry.Get("indexes").([]any)
	indexes := make([]*index, 0, len(specs))
	for _, spec := range specs {
		d, isDoc := spec.(domain.Document)
		if !isDoc {
			return fmt.Errorf("invalid index of %s", name)
		}
		i, err := db.newIndex(modelFromSpec(d))
		if err != nil {
			return err
		}
		indexes = append(indexes, i)
	}
	if err := s.addIndexes(indexes...); err != nil {
		return err
	}
	collections[name] = s
	return nil
}

// createOptions reads collection options as listed by the server or given
// to the create command.
func createOptions(d domain.Document) *options.CreateCollectionOptions {
	opts := options.CreateCollection()
	if d == nil {
		return opts
	}
	if capped, isBool := d.Get("capped").(bool); isBool {
		opts.SetCapped(capped)
	}
	if size, isNum := structure.AsInt64(d.Get("size")); isNum && d.Has("size") {
		opts.SetSizeInBytes(size)
	}
	if maxDocs, isNum := structure.AsInt64(d.Get("max")); isNum && d.Has("max") {
		opts.SetMaxDocuments(maxDocs)
	}
	if v := d.D("validator"); v != nil {
		opts.SetValidator(data.ToBSON(v))
	}
	if l, isStr := d.Get("validationLevel").(string); isStr {
		opts.SetValidationLevel(l)
	}
	if a, isStr := d.Get("validationAction").(string); isStr {
		opts.SetValidationAction(a)
	}
	return opts
}

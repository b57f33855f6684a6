package sdjournal

import (
	"errors"
	"io"
	"iter"
	"log/slog"
)

// Cursors walks forward from the current position with Next. Each yielded
// Cursor is the same view; it is only valid until the next iteration.
func (j *Journal) Cursors() iter.Seq2[*Cursor, error] {
	return j.walk("cursors", j.Next)
}

// CursorsReverse walks backward with Previous.
func (j *Journal) CursorsReverse() iter.Seq2[*Cursor, error] {
	return j.walk("cursors-reverse", j.Previous)
}

func (j *Journal) walk(op string, step func() (Movement, error)) iter.Seq2[*Cursor, error] {
	return func(yield func(*Cursor, error) bool) {
		c := j.Cursor()
		for {
			m, err := step()
			if err != nil {
				j.log.Debug("iteration stopped", slog.String("op", op), slog.Any("error", err))
				yield(nil, err)
				return
			}
			if m.EOF() {
				return
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}

// Fields iterates the fields of the current entry, starting over from the
// first one.
func (j *Journal) Fields() iter.Seq2[Field, error] {
	return func(yield func(Field, error) bool) {
		if err := j.RestartFieldsEnumeration(); err != nil {
			yield(Field{}, err)
			return
		}
		drain(j, "fields", j.EnumerateFields, yield)
	}
}

// Fields iterates the fields of the entry the cursor views.
func (c *Cursor) Fields() iter.Seq2[Field, error] { return c.j.Fields() }

// FieldNames iterates every field name used in the journal.
func (j *Journal) FieldNames() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := j.RestartFieldNameEnumeration(); err != nil {
			yield("", err)
			return
		}
		drain(j, "field-names", j.EnumerateFieldNames, yield)
	}
}

// UniqueValues queries field and iterates its distinct values. The query
// itself fails eagerly, for instance on an invalid field name. Each range
// over the result queries field again, so other unique queries in between
// do not leak into it.
func (j *Journal) UniqueValues(field string) (iter.Seq2[string, error], error) {
	if err := j.QueryUniqueValues(field); err != nil {
		return nil, err
	}
	return func(yield func(string, error) bool) {
		if err := j.QueryUniqueValues(field); err != nil {
			yield("", err)
			return
		}
		drain(j, "unique-values", j.EnumerateUniqueValues, yield)
	}, nil
}

// drain calls next until io.EOF. Any other error is yielded once and ends
// the iteration.
func drain[T any](j *Journal, op string, next func() (T, error), yield func(T, error) bool) {
	for {
		v, err := next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			j.log.Debug("iteration stopped", slog.String("op", op), slog.Any("error", err))
			var zero T
			yield(zero, err)
			return
		}
		if !yield(v, nil) {
			return
		}
	}
}

package storage

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggmueller/marten/internal/docerr"
)

type Audit struct {
	By string
	at int64
}

type Account struct {
	Audit
	Id     string
	Name   string
	secret string

	balance int64
	level   int
	limit   int
}

func (a *Account) Secret() string { return a.secret }
func (a *Account) Balance() int64 { return a.balance }
func (a *Account) Level() int { return a.level }
func (a *Account) SetLevel(v int) { a.level = v }
func (a *Account) Limit() int { return a.limit }
func (a *Account) Close(string) {}
func (a *Account) Computed() int { return 42 }
func (a *Account) SetLimit(v int) error {
	if v < 0 {
		return errors.New("negative limit")
	}
	a.limit = v
	return nil
}

type Embedded struct {
	*Audit
	Id string
}

func TestSynthesizeWriter_Kinds(t *testing.T) {
	tests := []struct {
		member string
		kind   WriterKind
		value  any
		check  func(a *Account) any
	}{
		{"Name", FieldWriter, "jdm", func(a *Account) any { return a.Name }},
		{"By", FieldWriter, "ops", func(a *Account) any { return a.By }},
		{"secret", UnexportedFieldWriter, "s3cr3t", func(a *Account) any { return a.secret }},
		{"at", UnexportedFieldWriter, int64(99), func(a *Account) any { return a.at }},
		{"Level", PropertyWriter, 3, func(a *Account) any { return a.level }},
		{"Balance", BackingFieldWriter, int64(250), func(a *Account) any { return a.balance }},
	}
	for _, tc := range tests {
		t.Run(tc.member, func(t *testing.T) {
			w, err := SynthesizeWriter(reflect.TypeFor[Account](), tc.member)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, w.Kind)

			a := &Account{}
			require.NoError(t, w.Set(a, tc.value))
			assert.Equal(t, tc.value, tc.check(a))
		})
	}
}

func TestSynthesizeWriter_Converts(t *testing.T) {
	w, err := SynthesizeWriter(reflect.TypeFor[Account](), "Balance")
	require.NoError(t, err)

	a := &Account{}
	require.NoError(t, w.Set(a, 7), "int converts to int64")
	assert.Equal(t, int64(7), a.balance)

	require.NoError(t, w.Set(a, nil), "nil writes the zero value")
	assert.Equal(t, int64(0), a.balance)

	err = w.Set(a, "seven")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot assign string to int64")
}

func TestConvert(t *testing.T) {
	id := uuid.MustParse("00000000-0000-7000-8000-00000000000a")
	tests := []struct {
		name   string
		value  any
		target reflect.Type
		want   any
	}{
		{"uuid from text", id.String(), reflect.TypeFor[uuid.UUID](), id},
		{"uuid from pgx bytes", [16]byte(id), reflect.TypeFor[uuid.UUID](), id},
		{"int32 to int", int32(4), reflect.TypeFor[int](), 4},
		{"sqlite boolean", int64(1), reflect.TypeFor[bool](), true},
		{"sqlite false", int64(0), reflect.TypeFor[bool](), false},
		{"bytes to string", []byte("abc"), reflect.TypeFor[string](), "abc"},
		{"null", nil, reflect.TypeFor[string](), ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Convert(tc.value, tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := Convert("yes", reflect.TypeFor[bool]())
	assert.Error(t, err)
}

func TestSynthesizeWriter_SetterError(t *testing.T) {
	w, err := SynthesizeWriter(reflect.TypeFor[Account](), "Limit")
	require.NoError(t, err)
	assert.Equal(t, PropertyWriter, w.Kind)

	err = w.Set(&Account{}, -1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative limit")
}

func TestSynthesizeWriter_InvalidMemberKind(t *testing.T) {
	for _, member := range []string{"Close", "Computed", "Nope"} {
		t.Run(member, func(t *testing.T) {
			_, err := SynthesizeWriter(reflect.TypeFor[Account](), member)
			require.Error(t, err)
			assert.True(t, docerr.IsInvalidMemberKind(err), "got %v", err)

			var de *docerr.Error
			require.True(t, errors.As(err, &de))
			assert.Equal(t, "storage.Account", de.DocumentType)
			assert.Equal(t, member, de.Member)
		})
	}

	_, err := SynthesizeWriter(reflect.TypeFor[int](), "X")
	assert.True(t, docerr.IsInvalidMemberKind(err))
}

func TestSynthesizeWriter_EmbeddedPointer(t *testing.T) {
	w, err := SynthesizeWriter(reflect.TypeFor[Embedded](), "at")
	require.NoError(t, err)
	assert.Equal(t, UnexportedFieldWriter, w.Kind)

	e := &Embedded{Audit: &Audit{}}
	require.NoError(t, w.Set(e, int64(5)))
	assert.Equal(t, int64(5), e.at)

	assert.Error(t, w.Set(&Embedded{}, int64(5)), "nil embedded pointer")
}

func TestWriter_WrongDocument(t *testing.T) {
	w, err := SynthesizeWriter(reflect.TypeFor[Account](), "Name")
	require.NoError(t, err)

	assert.Error(t, w.Set(Account{}, "x"), "not a pointer")
	assert.Error(t, w.Set(&Embedded{}, "x"), "other type")
	assert.Error(t, w.Set((*Account)(nil), "x"), "nil pointer")
}

func TestWriterCache_SynthesizesOnce(t *testing.T) {
	c := NewWriterCache()

	var wg sync.WaitGroup
	writers := make([]*Writer, 20)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := c.WriterFor(reflect.TypeFor[*Account](), "secret")
			if err == nil {
				writers[i] = w
			}
		}()
	}
	wg.Wait()

	for _, w := range writers {
		require.NotNil(t, w)
		assert.Same(t, writers[0], w)
	}

	_, err := c.WriterFor(reflect.TypeFor[Account](), "Close")
	assert.True(t, docerr.IsInvalidMemberKind(err))
}

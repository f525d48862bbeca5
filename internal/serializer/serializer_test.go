package serializer

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	Title string
	Body  string `json:"body"`
}

func TestToText_NoHTMLEscape(t *testing.T) {
	text, err := JSON{}.ToText(note{Title: "a<b>&c", Body: "x"})
	require.NoError(t, err)
	assert.Equal(t, `{"Title":"a<b>&c","body":"x"}`, text)
}

func TestToText_Unsupported(t *testing.T) {
	_, err := JSON{}.ToText(make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serialize chan int")
}

func TestFromText(t *testing.T) {
	v, err := JSON{}.FromText(`{"Title":"t","body":"b"}`, reflect.TypeOf(&note{}))
	require.NoError(t, err)

	n, ok := v.(*note)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, note{Title: "t", Body: "b"}, *n)
}

func TestFromText_Malformed(t *testing.T) {
	_, err := JSON{}.FromText(`{"Title":`, reflect.TypeOf(note{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deserialize *serializer.note")
}

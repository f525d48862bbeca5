package docerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "plain",
			err:  New(CodeNoResults, "no document matched"),
			want: "NO_RESULTS: no document matched",
		},
		{
			name: "query",
			err:  &Error{Code: CodeUnsupportedQueryShape, Message: "or is not supported", QueryType: "main.ByName"},
			want: "UNSUPPORTED_QUERY_SHAPE: or is not supported (query=main.ByName)",
		},
		{
			name: "member",
			err:  InvalidMember("main.User", "Login", "method is not a property"),
			want: "INVALID_MEMBER_KIND: method is not a property (document=main.User, member=Login)",
		},
		{
			name: "document",
			err:  &Error{Code: CodeMissingID, Message: "empty id", DocumentType: "main.User"},
			want: "MISSING_ID: empty id (document=main.User)",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestIs_Wrapped(t *testing.T) {
	err := fmt.Errorf("plan for query: %w", UnsupportedQuery("operator %q", "~"))

	assert.True(t, IsUnsupportedQueryShape(err))
	assert.False(t, IsAmbiguousAlias(err))
	assert.False(t, IsUnsupportedQueryShape(errors.New("plain")))
	assert.False(t, IsNoResults(nil))
}

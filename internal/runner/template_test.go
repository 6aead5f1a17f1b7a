package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type templateInner struct {
	Path string `template:""`
}

type templateDoc struct {
	Tagged    string            `template:""`
	Untagged  string            `yaml:"untagged"`
	Skipped   string            `template:"-"`
	Ptr       *string           `template:""`
	Nil       *string           `template:""`
	List      []string          `template:""`
	RawList   []string          `template:"-"`
	Headers   map[string]string `yaml:"headers"`
	Counts    map[string]int
	Inner     templateInner
	InnerPtr  *templateInner
	Items     []templateInner
	ItemPtrs  []*templateInner
	NilInner  *templateInner
	Untouched int

	hidden string `template:""`
}

func TestExpandTemplates(t *testing.T) {
	shared := "${JOB_NAME}"
	doc := templateDoc{
		Tagged:    "${JOB_NAME}/data",
		Untagged:  "${JOB_NAME}",
		Skipped:   "${JOB_NAME}",
		Ptr:       &shared,
		List:      []string{"${A}", "plain"},
		RawList:   []string{"${A}"},
		Headers:   map[string]string{"X-Job": "${JOB_NAME}"},
		Counts:    map[string]int{"k": 1},
		Inner:     templateInner{Path: "${A}"},
		InnerPtr:  &templateInner{Path: "${B}"},
		Items:     []templateInner{{Path: "${A}"}, {Path: "${B}"}},
		ItemPtrs:  []*templateInner{{Path: "${A}"}, nil},
		Untouched: 42,
		hidden:    "${A}",
	}

	err := ExpandTemplates(&doc, map[string]string{"JOB_NAME": "nightly", "A": "a", "B": "b"})
	require.NoError(t, err)

	assert.Equal(t, "nightly/data", doc.Tagged)
	assert.Equal(t, "${JOB_NAME}", doc.Untagged)
	assert.Equal(t, "${JOB_NAME}", doc.Skipped)
	assert.Equal(t, "nightly", *doc.Ptr)
	assert.Equal(t, "${JOB_NAME}", shared, "pointee must not be modified")
	assert.Nil(t, doc.Nil)
	assert.Equal(t, []string{"a", "plain"}, doc.List)
	assert.Equal(t, []string{"${A}"}, doc.RawList)
	assert.Equal(t, map[string]string{"X-Job": "nightly"}, doc.Headers)
	assert.Equal(t, map[string]int{"k": 1}, doc.Counts)
	assert.Equal(t, "a", doc.Inner.Path)
	assert.Equal(t, "b", doc.InnerPtr.Path)
	assert.Equal(t, []templateInner{{Path: "a"}, {Path: "b"}}, doc.Items)
	assert.Equal(t, "a", doc.ItemPtrs[0].Path)
	assert.Nil(t, doc.ItemPtrs[1])
	assert.Nil(t, doc.NilInner)
	assert.Equal(t, 42, doc.Untouched)
	assert.Equal(t, "${A}", doc.hidden)
}

func TestExpandTemplates_Errors(t *testing.T) {
	tests := []struct {
		name       string
		doc        templateDoc
		errContain string
	}{
		{
			name:       "string field",
			doc:        templateDoc{Tagged: "${MISSING}"},
			errContain: `Tagged: environment variable "MISSING" is not in the allowed list`,
		},
		{
			name:       "nested struct",
			doc:        templateDoc{InnerPtr: &templateInner{Path: "${MISSING}"}},
			errContain: "InnerPtr: Path:",
		},
		{
			name:       "map value",
			doc:        templateDoc{Headers: map[string]string{"Authorization": "Bearer ${TOKEN}"}},
			errContain: `"TOKEN"`,
		},
		{
			name:       "slice element",
			doc:        templateDoc{Items: []templateInner{{Path: "ok"}, {Path: "${NOPE}"}}},
			errContain: "NOPE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ExpandTemplates(&tt.doc, map[string]string{})
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.errContain)
		})
	}
}

func TestExpandTemplates_TopLevel(t *testing.T) {
	t.Run("nil pointer", func(t *testing.T) {
		var in *templateInner
		require.NoError(t, ExpandTemplates(in, map[string]string{}))
	})

	t.Run("slice of structs", func(t *testing.T) {
		in := []templateInner{{Path: "${X}"}}
		require.NoError(t, ExpandTemplates(&in, map[string]string{"X": "y"}))
		assert.Equal(t, "y", in[0].Path)
	})

	t.Run("unsupported kind", func(t *testing.T) {
		in := 3
		err := ExpandTemplates(&in, map[string]string{})
		assert.ErrorContains(t, err, "expects *struct or *[]struct")
	})

	t.Run("named map type", func(t *testing.T) {
		type labels map[string]string
		in := struct{ Labels labels }{Labels: labels{"env": "${ENV}"}}
		require.NoError(t, ExpandTemplates(&in, map[string]string{"ENV": "prod"}))
		assert.Equal(t, labels{"env": "prod"}, in.Labels)
	})
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		variables  map[string]string
		want       string
		wantErr    bool
		errContain string
	}{
		{
			name:      "no variables",
			value:     "plain-text",
			variables: map[string]string{},
			want:      "plain-text",
		},
		{
			name:  "archive name pattern",
			value: "${JOB_NAME}-${JOB_DATE_ISO8601}",
			variables: map[string]string{
				"JOB_NAME":         "cf-images",
				"JOB_DATE_ISO8601": "20260124T103000Z",
			},
			want: "cf-images-20260124T103000Z",
		},
		{
			name:      "short form",
			value:     "$CF_ACCOUNT_ID",
			variables: map[string]string{"CF_ACCOUNT_ID": "acct"},
			want:      "acct",
		},
		{
			name:       "disallowed env var",
			value:      "${CF_API_TOKEN}",
			variables:  map[string]string{},
			wantErr:    true,
			errContain: `environment variable "CF_API_TOKEN" is not in the allowed list`,
		},
		{
			name:      "multiple errors accumulated",
			value:     "${NOT_ALLOWED}${ALSO_NOT_ALLOWED}",
			variables: map[string]string{},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.value, tt.variables)

			if tt.wantErr {
				require.Error(t, err)
				if tt.errContain != "" {
					assert.Contains(t, err.Error(), tt.errContain)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandMap(t *testing.T) {
	got, err := ExpandMap(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ExpandMap(map[string]string{"Authorization": "Bearer ${TOKEN}"}, map[string]string{"TOKEN": "abc123"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "Bearer abc123"}, got)

	_, err = ExpandMap(map[string]string{"Good": "plain", "Bad": "${NOT_ALLOWED}"}, map[string]string{})
	assert.ErrorContains(t, err, "is not in the allowed list")
}

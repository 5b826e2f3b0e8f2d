package materializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUnistr(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no calls",
			input: "INSERT INTO t VALUES ('plain');",
			want:  "INSERT INTO t VALUES ('plain');",
		},
		{
			name:  "single backslash escape",
			input: `INSERT INTO t VALUES (unistr('caf\00e9'));`,
			want:  "INSERT INTO t VALUES ('café');",
		},
		{
			name:  "double backslash escape",
			input: `INSERT INTO t VALUES (UNISTR( 'caf\\00e9' ));`,
			want:  "INSERT INTO t VALUES ('café');",
		},
		{
			name:  "decoded quote is doubled",
			input: `SELECT unistr('O\0027Brien');`,
			want:  "SELECT 'O''Brien';",
		},
		{
			name:  "doubled quote survives",
			input: `SELECT unistr('O''Brien');`,
			want:  "SELECT 'O''Brien';",
		},
		{
			name:  "surrogate pair",
			input: `SELECT unistr('\d83d\de00!');`,
			want:  "SELECT '\U0001F600!';",
		},
		{
			name:  "double quoted argument",
			input: `SELECT unistr("abc");`,
			want:  "SELECT 'abc';",
		},
		{
			name:  "lone surrogate keeps bare literal",
			input: `SELECT unistr('\d800x');`,
			want:  `SELECT '\d800x';`,
		},
		{
			name:  "several calls",
			input: `VALUES (unistr('\00e9'), unistr('\00fc'));`,
			want:  "VALUES ('é', 'ü');",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeUnistr(tt.input))
		})
	}
}

func TestDecodeUnistrBackslash(t *testing.T) {
	got, ok := decodeUnistr(`a\\b\zz`)
	assert.True(t, ok)
	assert.Equal(t, `a\b\zz`, got)
}

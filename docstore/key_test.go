package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/docstore/errors"
)

func TestBuildKey(t *testing.T) {
	tests := []struct {
		name       string
		entityType string
		entityID   string
		want       string
		wantErr    bool
	}{
		{"simple", "Account", "u-1", "Account:u-1", false},
		{"id with delimiter", "Account", "eu:u-1", "Account:eu:u-1", false},
		{"empty type", "", "u-1", "", true},
		{"empty id", "Account", "", "", true},
		{"type with delimiter", "Acc:ount", "u-1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildKey(tt.entityType, tt.entityID)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrInvalidArgument)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildKey_Injective(t *testing.T) {
	pairs := [][2]string{
		{"a", "b:c"},
		{"a:b", "c"}, // rejected, so it can never collide with the pair above
		{"ab", "c"},
		{"a", "bc"},
	}

	seen := make(map[string][2]string)
	for _, p := range pairs {
		key, err := BuildKey(p[0], p[1])
		if err != nil {
			continue
		}
		prev, dup := seen[key]
		assert.False(t, dup, "%v and %v both map to %q", prev, p, key)
		seen[key] = p

		typ, id, ok := SplitKey(key)
		require.True(t, ok)
		assert.Equal(t, p, [2]string{typ, id})
	}
}

func TestSplitKey_Invalid(t *testing.T) {
	for _, key := range []string{"", "nodelimiter", ":id", "type:"} {
		_, _, ok := SplitKey(key)
		assert.False(t, ok, key)
	}
}

func TestCondition_String(t *testing.T) {
	assert.Equal(t, "unconditional", Always().String())
	assert.Equal(t, "if-absent", Absent().String())
	assert.Equal(t, "if-token(7)", MatchToken(7).String())
	assert.Equal(t, "mode(9)", ConditionMode(9).String())
}

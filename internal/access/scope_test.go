package access

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestTaggedScopeWithoutGrantsIsPublic(t *testing.T) {
	scope := TaggedScope(nil)
	assert.Equal(t, ScopeKindPublic, scope.Kind)

	scope = TaggedScope([]snowflake.ID{42})
	assert.Equal(t, ScopeKindTagged, scope.Kind)
}

func TestScopeAllows(t *testing.T) {
	tagA := snowflake.ID(1)
	tagB := snowflake.ID(2)
	tagC := snowflake.ID(3)

	tests := []struct {
		name    string
		scope   Scope
		docTags []snowflake.ID
		want    bool
	}{
		{"all sees untagged", AllScope(), nil, true},
		{"all sees tagged", AllScope(), []snowflake.ID{tagA}, true},
		{"public sees untagged", PublicScope(), nil, true},
		{"public hides tagged", PublicScope(), []snowflake.ID{tagA}, false},
		{"tagged sees untagged", TaggedScope([]snowflake.ID{tagA}), nil, true},
		{"tagged sees shared tag", TaggedScope([]snowflake.ID{tagA, tagB}), []snowflake.ID{tagB, tagC}, true},
		{"tagged hides disjoint tags", TaggedScope([]snowflake.ID{tagA}), []snowflake.ID{tagC}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scope.Allows(tt.docTags))
		})
	}
}

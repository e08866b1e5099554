package access

import (
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ScopeKind enumerates document visibility levels.
type ScopeKind string

const (
	// ScopeKindAll grants visibility to every document in the tenant.
	// Admins and owners bypass tag filtering entirely.
	ScopeKindAll ScopeKind = "all"
	// ScopeKindPublic grants visibility to untagged documents only.
	// An untagged document is public within its tenant.
	ScopeKindPublic ScopeKind = "public"
	// ScopeKindTagged grants visibility to untagged documents plus
	// documents sharing at least one tag with the principal.
	ScopeKindTagged ScopeKind = "tagged"
)

// Scope is the resolved document visibility of a principal within a
// tenant. It is an explicit variant rather than a bare tag slice so the
// "no tags means public" invariant lives in exactly one place.
type Scope struct {
	Kind   ScopeKind
	TagIDs []snowflake.ID
}

func AllScope() Scope    { return Scope{Kind: ScopeKindAll} }
func PublicScope() Scope { return Scope{Kind: ScopeKindPublic} }

func TaggedScope(tagIDs []snowflake.ID) Scope {
	if len(tagIDs) == 0 {
		return PublicScope()
	}
	return Scope{Kind: ScopeKindTagged, TagIDs: tagIDs}
}

const untaggedPredicate = `NOT EXISTS (
	SELECT 1 FROM document_tags dt WHERE dt.document_id = documents.id
)`

const sharedTagPredicate = `EXISTS (
	SELECT 1 FROM document_tags dt WHERE dt.document_id = documents.id AND dt.tag_id IN (?)
)`

// Apply pushes the visibility predicate into a query over the documents
// table. Filtering happens in SQL so a restricted principal never
// materializes the tenant's full document or chunk set.
func (s Scope) Apply(stmt *gorm.DB) *gorm.DB {
	switch s.Kind {
	case ScopeKindAll:
		return stmt
	case ScopeKindTagged:
		return stmt.Where("("+untaggedPredicate+" OR "+sharedTagPredicate+")", s.tagIDValues())
	default:
		return stmt.Where(untaggedPredicate)
	}
}

// Allows reports whether a document carrying the given tag set is
// visible under this scope.
func (s Scope) Allows(docTagIDs []snowflake.ID) bool {
	switch s.Kind {
	case ScopeKindAll:
		return true
	case ScopeKindTagged:
		if len(docTagIDs) == 0 {
			return true
		}
		for _, docTag := range docTagIDs {
			for _, grant := range s.TagIDs {
				if docTag == grant {
					return true
				}
			}
		}
		return false
	default:
		return len(docTagIDs) == 0
	}
}

func (s Scope) tagIDValues() []int64 {
	values := make([]int64, 0, len(s.TagIDs))
	for _, id := range s.TagIDs {
		values = append(values, int64(id))
	}
	return values
}

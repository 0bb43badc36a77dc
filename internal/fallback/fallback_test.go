package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_KnownCategories(t *testing.T) {
	tbl := New()

	assert.Equal(t, "basic_attack", tbl.For(CategoryAttack).Action)
	assert.Equal(t, "defend", tbl.For(CategoryDefend).Action)
	assert.Equal(t, "wait", tbl.For(CategoryWait).Action)
}

func TestTable_UnknownCategoryDefaultsToAttack(t *testing.T) {
	tbl := New()

	assert.Equal(t, tbl.For(CategoryAttack), tbl.For(""))
	assert.Equal(t, tbl.For(CategoryAttack), tbl.For("summon_dragon"))
}

func TestTable_LowConfidence(t *testing.T) {
	tbl := New()
	for _, cat := range []string{CategoryAttack, CategoryDefend, CategoryWait} {
		assert.InDelta(t, Confidence, tbl.For(cat).Confidence, 1e-6,
			"fallback decisions must be marked low-confidence")
	}
}

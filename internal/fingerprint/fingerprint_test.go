package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/sente/internal/model"
)

func TestCoarse_Deterministic(t *testing.T) {
	tc := model.Context{HP: 50, MP: 30, EnemiesAlive: 2}
	assert.Equal(t, Coarse(tc), Coarse(tc))
	assert.Equal(t, "hp5_mp3_e2", Coarse(tc))
}

func TestCoarse_BucketsEquivalentStates(t *testing.T) {
	a := model.Context{HP: 55, MP: 30, EnemiesAlive: 2}
	b := model.Context{HP: 51, MP: 38, EnemiesAlive: 2}
	assert.Equal(t, Coarse(a), Coarse(b), "same buckets should hash identically")
}

func TestCoarse_DistinguishesTacticalChanges(t *testing.T) {
	base := model.Context{HP: 55, MP: 30, EnemiesAlive: 2}

	hurt := base
	hurt.HP = 45
	assert.NotEqual(t, Coarse(base), Coarse(hurt), "crossing an HP bucket changes the fingerprint")

	fewer := base
	fewer.EnemiesAlive = 1
	assert.NotEqual(t, Coarse(base), Coarse(fewer), "enemy count changes the fingerprint")
}

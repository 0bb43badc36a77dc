// Package fingerprint provides the default context fingerprinter.
//
// A fingerprint is a deliberately lossy compression of the tactical
// situation: two contexts that are tactically equivalent must hash
// identically or the cache never pays off, while anything finer than the
// decision maker actually reacts to collapses the hit rate. Games with
// different granularity needs inject their own Fingerprinter at the root
// instead of editing this one.
package fingerprint

import (
	"fmt"

	"github.com/ashita-ai/sente/internal/model"
)

// bucketWidth is the HP/MP quantization step. Ten points is roughly one hit
// in the reference balance, so decisions within a bucket rarely differ.
const bucketWidth = 10

// Coarse summarizes a context as HP bucket, MP bucket, and alive-enemy
// count. Deterministic for equal inputs.
func Coarse(tc model.Context) string {
	return fmt.Sprintf("hp%d_mp%d_e%d", tc.HP/bucketWidth, tc.MP/bucketWidth, tc.EnemiesAlive)
}

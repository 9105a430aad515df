package models

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// BoxRound is the ephemeral voting round. It has no persisted identity of its
// own: candidates are whatever songs hold status in_box, and the round key is
// derived from the sorted candidate IDs. The key is what scopes vote tallies
// and per-listener dedup, so a reload or leader handoff reconstructs the same
// round from the database alone.
type BoxRound struct {
	Candidates []*Song   `json:"candidates"`
	StartedAt  time.Time `json:"started_at"`
	Deadline   time.Time `json:"deadline"`
}

// Key returns the round fingerprint: candidate IDs, sorted, joined with "-".
// Duplicate padding entries collapse, which is intended: a padded round is
// still one round.
func (r *BoxRound) Key() string {
	return RoundKey(r.Candidates)
}

// RoundKey derives the round fingerprint for a candidate set.
func RoundKey(candidates []*Song) string {
	ids := make([]int, 0, len(candidates))
	seen := make(map[uint]struct{}, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		ids = append(ids, int(c.ID))
	}
	sort.Ints(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, "-")
}

// Expired reports whether the voting window has closed.
func (r *BoxRound) Expired(now time.Time) bool {
	return now.After(r.Deadline)
}

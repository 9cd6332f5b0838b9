package store

import "sort"

// Merge reconciles two candidate sets by id union.
//
// Per id, the record with the more advanced status wins outright. At equal
// rank the incoming record wins field-by-field (last-writer-wins), but empty
// incoming fields never erase populated ones. The result is ordered by
// AddedAt then ID so snapshots are deterministic.
func Merge(existing, incoming []Candidate) []Candidate {
	byID := make(map[string]Candidate, len(existing)+len(incoming))
	for _, c := range existing {
		if c.ID == "" {
			continue
		}
		byID[c.ID] = c
	}
	for _, in := range incoming {
		if in.ID == "" {
			continue
		}
		cur, ok := byID[in.ID]
		if !ok {
			byID[in.ID] = in
			continue
		}
		byID[in.ID] = mergeOne(cur, in)
	}

	out := make([]Candidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func mergeOne(cur, in Candidate) Candidate {
	curRank, inRank := cur.Status.rank(), in.Status.rank()
	if inRank < curRank {
		// Never downgrade; keep the advanced record but absorb metric
		// updates from the stale writer.
		return fillEmpty(cur, in)
	}
	if inRank > curRank {
		return fillEmpty(in, cur)
	}
	// Same rank: incoming wins, existing backfills.
	return fillEmpty(in, cur)
}

// fillEmpty returns primary with zero-valued fields taken from fallback.
func fillEmpty(primary, fallback Candidate) Candidate {
	if primary.Nickname == "" {
		primary.Nickname = fallback.Nickname
	}
	if primary.Reason == "" {
		primary.Reason = fallback.Reason
	}
	if primary.Followers == 0 {
		primary.Followers = fallback.Followers
	}
	if primary.Likes == 0 {
		primary.Likes = fallback.Likes
	}
	if primary.AddedAt.IsZero() || (!fallback.AddedAt.IsZero() && fallback.AddedAt.Before(primary.AddedAt)) {
		primary.AddedAt = fallback.AddedAt
	}
	if primary.VerifiedAt.IsZero() {
		primary.VerifiedAt = fallback.VerifiedAt
	}
	if primary.SentAt.IsZero() {
		primary.SentAt = fallback.SentAt
	}
	return primary
}

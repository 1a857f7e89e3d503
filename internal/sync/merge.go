package sync

import (
	"github.com/ines/tagmark/internal/models"
)

// mergeFull reconciles the complete local and remote collections using the
// shadow map as the common ancestor. For each id in local ∪ remote:
//
//   - local-only, no pending delete: keep local (unsynced new item)
//   - local-only with a pending delete: drop; a delete that has not
//     round-tripped must not be resurrected from a stale local copy
//   - remote-only, not remote-deleted: adopt remote
//   - both sides: if one side still matches the ancestor hash the other
//     side wins; if both diverged, newest UpdatedAt wins whole-record
func mergeFull[E models.Entity](local, remoteEnts []E, kind models.ChangeType, shadow map[string]models.ShadowEntry, pendingDeletes map[string]bool) []E {
	localByID := make(map[string]E, len(local))
	for _, l := range local {
		localByID[l.EntityID()] = l
	}
	remoteByID := make(map[string]E, len(remoteEnts))
	for _, r := range remoteEnts {
		remoteByID[r.EntityID()] = r
	}

	out := make([]E, 0, len(localByID)+len(remoteByID))

	for _, l := range local {
		id := l.EntityID()
		key := models.ShadowKey(kind, id)
		r, onRemote := remoteByID[id]

		if !onRemote {
			if pendingDeletes[key] {
				continue
			}
			out = append(out, l)
			continue
		}

		anc, hasAncestor := shadow[key]
		switch {
		case hasAncestor && l.ContentHash() == anc.Hash:
			// Local made no edits since the last merge; remote wins even
			// when its timestamp is older.
			out = append(out, r)
		case hasAncestor && r.ContentHash() == anc.Hash:
			out = append(out, l)
		default:
			// Both diverged from the ancestor (or there is no ancestor).
			// Whole-record newest-wins; the losing side's field edits are
			// dropped, which is the accepted conflict-resolution depth.
			if l.EntityUpdatedAt() >= r.EntityUpdatedAt() {
				out = append(out, l)
			} else {
				out = append(out, r)
			}
		}
	}

	for _, r := range remoteEnts {
		if _, onLocal := localByID[r.EntityID()]; onLocal {
			continue
		}
		if r.IsDeleted() {
			// Remote-only tombstone: nothing local to delete, nothing to
			// adopt.
			continue
		}
		out = append(out, r)
	}

	return out
}

// mergeIncremental merges a remote delta into the local collection. The
// fetch returned only rows changed since the cursor, so an id absent from
// the delta is by construction unchanged remotely and is kept as-is. For
// ids on both sides, newest UpdatedAt wins; remote tombstones overwrite so
// deletions propagate.
func mergeIncremental[E models.Entity](local, delta []E) []E {
	merged := make(map[string]E, len(local))
	order := make([]string, 0, len(local)+len(delta))
	for _, l := range local {
		merged[l.EntityID()] = l
		order = append(order, l.EntityID())
	}

	for _, r := range delta {
		id := r.EntityID()
		l, exists := merged[id]
		if !exists {
			merged[id] = r
			order = append(order, id)
			continue
		}
		if r.EntityUpdatedAt() > l.EntityUpdatedAt() {
			merged[id] = r
		}
	}

	out := make([]E, 0, len(merged))
	for _, id := range order {
		out = append(out, merged[id])
	}
	return out
}

// buildShadow records the merged state of every surviving entity
// (tombstones included) as the ancestor for the next three-way merge.
func buildShadow(tags []models.Tag, pages []models.Page) map[string]models.ShadowEntry {
	shadow := make(map[string]models.ShadowEntry, len(tags)+len(pages))
	for _, t := range tags {
		shadow[models.ShadowKey(models.ChangeTypeTag, t.ID)] = models.ShadowEntry{
			Hash:      t.ContentHash(),
			UpdatedAt: t.UpdatedAt,
		}
	}
	for _, p := range pages {
		shadow[models.ShadowKey(models.ChangeTypePage, p.ID)] = models.ShadowEntry{
			Hash:      p.ContentHash(),
			UpdatedAt: p.UpdatedAt,
		}
	}
	return shadow
}

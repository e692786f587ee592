package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// adjacencyCache is a lazily-populated read-through cache over the
// sub_category_group table. The table is the single source of truth for
// sub-category adjacency; the cache only saves the lookup on the hot
// resolve path and expires on its own.
type adjacencyCache struct {
	mu     sync.Mutex
	groups map[string]cachedGroup
}

type cachedGroup struct {
	members   []string
	fetchedAt time.Time
}

const adjacencyTTL = 5 * time.Minute

func adjacencyKey(category, subCategory string) string {
	return category + "\x00" + subCategory
}

// AdjacencyGroup returns every sub-category sharing an adjacency group with
// the given (category, sub_category), the requested sub-category included.
// A pair that belongs to no group yields just itself.
func (s *Store) AdjacencyGroup(ctx context.Context, category, subCategory string) ([]string, error) {
	key := adjacencyKey(category, subCategory)

	s.adjacency.mu.Lock()
	if g, ok := s.adjacency.groups[key]; ok && time.Since(g.fetchedAt) < adjacencyTTL {
		s.adjacency.mu.Unlock()
		return g.members, nil
	}
	s.adjacency.mu.Unlock()

	rows, err := s.DB.Query(ctx,
		`SELECT g2.sub_category
		 FROM sub_category_group g1
		 JOIN sub_category_group g2
		   ON g2.group_name = g1.group_name AND g2.category = g1.category
		 WHERE g1.category=$1 AND g1.sub_category=$2
		 ORDER BY g2.sub_category`,
		category, subCategory)
	if err != nil {
		return nil, fmt.Errorf("adjacency group: %w", err)
	}
	defer rows.Close()

	var members []string
	seen := map[string]struct{}{}
	for rows.Next() {
		var sub string
		if err := rows.Scan(&sub); err != nil {
			return nil, err
		}
		if _, dup := seen[sub]; !dup {
			seen[sub] = struct{}{}
			members = append(members, sub)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(members) == 0 {
		members = []string{subCategory}
	}

	s.adjacency.mu.Lock()
	if s.adjacency.groups == nil {
		s.adjacency.groups = map[string]cachedGroup{}
	}
	s.adjacency.groups[key] = cachedGroup{members: members, fetchedAt: time.Now()}
	s.adjacency.mu.Unlock()

	return members, nil
}

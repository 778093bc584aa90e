package matching

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Find returns the best user for a free-text name, or nil.
//
// Candidate pools are searched in order and the first hit wins:
//  1. complete profiles (name and main photo): exact, then normalized name
//  2. any user with a name: exact, then normalized name
//  3. users without a name but with a username: exact or normalized username
func Find(query string, users []RemoteUser) *RemoteUser {
	return NewIndex(users).Find(query)
}

// Index holds the user list split into matching pools plus a normalized
// name/username lookup. Later users overwrite earlier ones for the same key.
type Index struct {
	users        []RemoteUser
	complete     []int
	named        []int
	usernameOnly []int
	byName       map[string]int
}

func NewIndex(users []RemoteUser) *Index {
	idx := &Index{
		users:  users,
		byName: make(map[string]int, len(users)*2),
	}
	for i, u := range users {
		if u.hasName() {
			idx.named = append(idx.named, i)
			if u.hasPhoto() {
				idx.complete = append(idx.complete, i)
			}
		} else if u.name() == "" && u.username() != "" {
			idx.usernameOnly = append(idx.usernameOnly, i)
		}

		if key := Normalize(u.name()); key != "" {
			idx.byName[key] = i
		}
		if key := Normalize(u.username()); key != "" {
			idx.byName[key] = i
		}
	}
	return idx
}

func (idx *Index) Len() int { return len(idx.users) }

// Keys is the number of distinct normalized names and usernames.
func (idx *Index) Keys() int { return len(idx.byName) }

// Lookup returns the user registered under the normalized form of name.
func (idx *Index) Lookup(name string) (*RemoteUser, bool) {
	i, ok := idx.byName[Normalize(name)]
	if !ok {
		return nil, false
	}
	return &idx.users[i], true
}

func (idx *Index) Find(query string) *RemoteUser {
	if query == "" {
		return nil
	}
	exact := lowerTrim(query)
	normalized := Normalize(query)

	byName := func(pool []int) *RemoteUser {
		for _, i := range pool {
			if lowerTrim(idx.users[i].name()) == exact {
				return &idx.users[i]
			}
		}
		if normalized == "" {
			return nil
		}
		for _, i := range pool {
			if Normalize(idx.users[i].name()) == normalized {
				return &idx.users[i]
			}
		}
		return nil
	}

	if u := byName(idx.complete); u != nil {
		return u
	}
	if u := byName(idx.named); u != nil {
		return u
	}
	for _, i := range idx.usernameOnly {
		un := idx.users[i].username()
		if lowerTrim(un) == exact || (normalized != "" && Normalize(un) == normalized) {
			return &idx.users[i]
		}
	}
	return nil
}

// Suggest ranks indexed names by fuzzy similarity to query and returns up to
// n display names, closest first. Used for unmatched-record reports only.
func (idx *Index) Suggest(query string, n int) []string {
	normalized := Normalize(query)
	if normalized == "" || n <= 0 {
		return nil
	}
	keys := make([]string, 0, len(idx.byName))
	for k := range idx.byName {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ranks := fuzzy.RankFindNormalizedFold(normalized, keys)
	if len(ranks) == 0 {
		// fall back to matching the other way round (query longer than the key)
		for _, k := range keys {
			if fuzzy.MatchNormalizedFold(k, normalized) {
				ranks = append(ranks, fuzzy.Rank{Source: k, Target: k, Distance: len(normalized) - len(k)})
			}
		}
	}
	sort.Stable(ranks)

	seen := make(map[int]struct{}, n)
	out := make([]string, 0, n)
	for _, r := range ranks {
		i := idx.byName[r.Target]
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, idx.users[i].DisplayName())
		if len(out) == n {
			break
		}
	}
	return out
}

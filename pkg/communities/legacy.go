package communities

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/cuties-app/cuties/pkg/store"
)

type LegacyResult struct {
	LegacyNames      int      `json:"legacy_names"`
	Existing         int      `json:"existing"`
	Created          []string `json:"created"`
	CreateFailed     []string `json:"create_failed,omitempty"`
	ModeratorsAdded  int      `json:"moderators_added"`
	AlreadyModerated int      `json:"already_moderated"`
	MemberFailed     []string `json:"member_failed,omitempty"`
}

// LegacyNames collects the distinct community names found on user profiles,
// in first-seen order.
func (s *Service) LegacyNames(ctx context.Context) ([]string, error) {
	rows, err := store.SelectAll(ctx, s.store, UsersTable, store.Query{
		Columns: []string{"id", "communities"},
		Filters: []store.Filter{store.NotNull("communities")},
		Order:   "id",
	}, s.pageSize)
	if err != nil {
		return nil, errors.Wrap(err, "fetch legacy communities")
	}
	var users []struct {
		Communities []string `json:"communities"`
	}
	if err := store.Decode(rows, &users); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var names []string
	for _, u := range users {
		for _, name := range u.Communities {
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names, nil
}

// MigrateLegacy creates a community for every legacy name that has none yet
// and makes owner a moderator of it. Pre-existing communities without any
// admin or moderator get owner as moderator too. Failures on a single
// community are logged and the next one is processed.
func (s *Service) MigrateLegacy(ctx context.Context, owner *Owner) (*LegacyResult, error) {
	names, err := s.LegacyNames(ctx)
	if err != nil {
		return nil, err
	}
	s.log.WithField("count", len(names)).Info("legacy communities found")

	existing, err := s.loadCommunities(ctx)
	if err != nil {
		return nil, err
	}
	res := &LegacyResult{LegacyNames: len(names), Existing: len(existing)}

	existingNames := make(map[string]struct{}, len(existing))
	slugs := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		existingNames[c.Name] = struct{}{}
		slugs[c.Slug] = struct{}{}
	}

	for _, name := range names {
		if _, ok := existingNames[name]; ok {
			continue
		}
		slug := uniqueSlug(GenerateSlug(name), slugs)
		log := s.log.WithFields(logrus.Fields{"community": name, "slug": slug})

		id, err := s.create(ctx, newCommunity{Name: name, Slug: slug, CreatedBy: owner.ID})
		if err != nil {
			log.WithError(err).Error("create community failed")
			res.CreateFailed = append(res.CreateFailed, name)
			continue
		}
		res.Created = append(res.Created, name)
		log.WithField("id", id).Info("community created")

		err = s.addMember(ctx, membership{CommunityID: id, UserID: owner.ID, Role: RoleModerator})
		if err != nil && !store.IsUniqueViolation(err) {
			log.WithError(err).Error("add moderator failed")
			res.MemberFailed = append(res.MemberFailed, name)
			continue
		}
		res.ModeratorsAdded++
	}

	for _, c := range existing {
		log := s.log.WithField("community", c.Name)
		staff, err := s.store.Select(ctx, MembersTable, store.Query{
			Columns: []string{"id", "role"},
			Filters: []store.Filter{
				store.Eq("community_id", c.ID),
				store.In("role", RoleAdmin, RoleModerator),
			},
		})
		if err != nil {
			log.WithError(err).Error("check moderators failed")
			res.MemberFailed = append(res.MemberFailed, c.Name)
			continue
		}
		if len(staff) > 0 {
			log.WithField("moderators", len(staff)).Debug("already moderated")
			res.AlreadyModerated++
			continue
		}

		if err := s.ensureModerator(ctx, c.ID, owner.ID); err != nil {
			log.WithError(err).Error("add moderator failed")
			res.MemberFailed = append(res.MemberFailed, c.Name)
			continue
		}
		log.Info("owner added as moderator")
		res.ModeratorsAdded++
	}
	return res, nil
}

// ensureModerator upserts the membership and falls back to a plain insert
// when the upsert is rejected. An existing membership counts as success.
func (s *Service) ensureModerator(ctx context.Context, communityID, userID string) error {
	m := membership{CommunityID: communityID, UserID: userID, Role: RoleModerator}
	rows, err := store.RowsOf([]membership{m})
	if err != nil {
		return err
	}
	_, err = s.store.Upsert(ctx, MembersTable, rows, []string{"community_id", "user_id"})
	if err == nil {
		return nil
	}
	s.log.WithError(err).Debug("upsert rejected, trying insert")

	err = s.addMember(ctx, m)
	if err != nil && !store.IsUniqueViolation(err) {
		return err
	}
	return nil
}

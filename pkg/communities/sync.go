package communities

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/cuties-app/cuties/pkg/store"
)

type SyncResult struct {
	Missing      []string `json:"missing"`
	Created      []string `json:"created"`
	CreateFailed []string `json:"create_failed,omitempty"`
	AdminAdded   int      `json:"admin_added"`
	AdminUpdated int      `json:"admin_updated"`
	Failed       []string `json:"failed,omitempty"`
	Total        int64    `json:"total_communities"`
	OwnerAdminOf int64    `json:"owner_admin_of"`
}

// SyncCatalog creates catalog communities that do not exist yet and makes
// owner an admin of every community in the table.
func (s *Service) SyncCatalog(ctx context.Context, owner *Owner, catalog []CatalogEntry) (*SyncResult, error) {
	existing, err := s.loadCommunities(ctx)
	if err != nil {
		return nil, err
	}
	s.log.WithField("count", len(existing)).Info("existing communities")

	names := make(map[string]struct{}, len(existing))
	slugs := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		names[c.Name] = struct{}{}
		slugs[c.Slug] = struct{}{}
	}

	res := &SyncResult{}
	for _, entry := range catalog {
		if _, ok := names[entry.Name]; !ok {
			res.Missing = append(res.Missing, entry.Name)
		}
	}
	s.log.WithField("missing", len(res.Missing)).Info("catalog communities missing")

	for _, entry := range catalog {
		if _, ok := names[entry.Name]; ok {
			continue
		}
		desc := entry.Description
		slug := uniqueSlug(GenerateSlug(entry.Name), slugs)
		log := s.log.WithFields(logrus.Fields{"community": entry.Name, "slug": slug})

		id, err := s.create(ctx, newCommunity{
			Name:        entry.Name,
			Slug:        slug,
			Description: &desc,
			CreatedBy:   owner.ID,
		})
		if err != nil {
			log.WithError(err).Error("create community failed")
			res.CreateFailed = append(res.CreateFailed, entry.Name)
			continue
		}
		names[entry.Name] = struct{}{}
		res.Created = append(res.Created, entry.Name)
		log.WithField("id", id).Info("community created")

		if err := s.addMember(ctx, membership{CommunityID: id, UserID: owner.ID, Role: RoleAdmin}); err != nil {
			log.WithError(err).Error("add admin failed")
			res.Failed = append(res.Failed, entry.Name)
			continue
		}
		res.AdminAdded++
	}

	all, err := s.loadCommunities(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if err := s.ensureAdmin(ctx, c, owner.ID, res); err != nil {
			s.log.WithField("community", c.Name).WithError(err).Error("ensure admin failed")
			res.Failed = append(res.Failed, c.Name)
		}
	}

	if res.Total, err = s.store.Count(ctx, CommunitiesTable); err != nil {
		return nil, errors.Wrap(err, "count communities")
	}
	res.OwnerAdminOf, err = s.store.Count(ctx, MembersTable, store.Eq("user_id", owner.ID), store.Eq("role", RoleAdmin))
	if err != nil {
		return nil, errors.Wrap(err, "count owner memberships")
	}
	return res, nil
}

func (s *Service) ensureAdmin(ctx context.Context, c community, userID string, res *SyncResult) error {
	filters := []store.Filter{store.Eq("community_id", c.ID), store.Eq("user_id", userID)}
	row, err := store.SelectOne(ctx, s.store, MembersTable, store.Query{
		Columns: []string{"id", "role"},
		Filters: filters,
	})
	switch {
	case errors.Is(err, store.ErrNoRows):
		if err := s.addMember(ctx, membership{CommunityID: c.ID, UserID: userID, Role: RoleAdmin}); err != nil {
			if store.IsUniqueViolation(err) {
				return nil
			}
			return err
		}
		s.log.WithField("community", c.Name).Info("owner added as admin")
		res.AdminAdded++
		return nil
	case err != nil:
		return err
	}

	if role, _ := row["role"].(string); role == RoleAdmin {
		return nil
	}
	if err := s.store.Update(ctx, MembersTable, store.Row{"role": RoleAdmin}, filters...); err != nil {
		return err
	}
	s.log.WithField("community", c.Name).Info("owner updated to admin")
	res.AdminUpdated++
	return nil
}

// Package communities maintains the communities table: it promotes the
// free-text community names stored on legacy user profiles to real
// communities and keeps the built-in catalog present, with the configured
// owner holding a staff role everywhere.
package communities

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/cuties-app/cuties/pkg/store"
)

const (
	CommunitiesTable = "communities"
	MembersTable     = "community_members"
	UsersTable       = "users"

	RoleAdmin     = "admin"
	RoleModerator = "moderator"
)

var ErrOwnerNotFound = errors.New("owner user not found")

type Owner struct {
	ID    string  `json:"id"`
	Name  *string `json:"name"`
	Email string  `json:"email"`
}

type community struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type newCommunity struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
	IsPrivate   bool    `json:"is_private"`
	CreatedBy   string  `json:"created_by"`
}

type membership struct {
	CommunityID string `json:"community_id"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
}

// Service runs the community maintenance jobs against a store.
type Service struct {
	store    store.Store
	log      logrus.FieldLogger
	pageSize int
}

func NewService(s store.Store, log logrus.FieldLogger, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = store.DefaultPageSize
	}
	return &Service{store: s, log: log, pageSize: pageSize}
}

// LookupOwner finds the user with the given email.
func (s *Service) LookupOwner(ctx context.Context, email string) (*Owner, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("owner email is empty")
	}
	row, err := store.SelectOne(ctx, s.store, UsersTable, store.Query{
		Columns: []string{"id", "name", "email"},
		Filters: []store.Filter{store.Eq("email", email)},
	})
	if errors.Is(err, store.ErrNoRows) {
		return nil, errors.Wrap(ErrOwnerNotFound, email)
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup owner")
	}
	var o Owner
	if err := store.Decode(row, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Service) loadCommunities(ctx context.Context) ([]community, error) {
	rows, err := store.SelectAll(ctx, s.store, CommunitiesTable, store.Query{
		Columns: []string{"id", "name", "slug"},
		Order:   "id",
	}, s.pageSize)
	if err != nil {
		return nil, errors.Wrap(err, "load communities")
	}
	var out []community
	if err := store.Decode(rows, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// create inserts one community and returns its id.
func (s *Service) create(ctx context.Context, c newCommunity) (string, error) {
	rows, err := store.RowsOf([]newCommunity{c})
	if err != nil {
		return "", err
	}
	created, err := s.store.Insert(ctx, CommunitiesTable, rows)
	if err != nil {
		return "", err
	}
	if len(created) == 0 {
		return "", errors.New("insert returned no row")
	}
	id, _ := created[0]["id"].(string)
	if id == "" {
		return "", errors.New("insert returned no id")
	}
	return id, nil
}

func (s *Service) addMember(ctx context.Context, m membership) error {
	rows, err := store.RowsOf([]membership{m})
	if err != nil {
		return err
	}
	_, err = s.store.Insert(ctx, MembersTable, rows)
	return err
}

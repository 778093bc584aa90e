package matching

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/go-faster/errors"

	"github.com/cuties-app/cuties/pkg/store"
)

const UsersTable = "users"

// RemoteUser is the subset of a users row the importers match against.
type RemoteUser struct {
	ID        string          `json:"id"`
	Name      *string         `json:"name"`
	Username  *string         `json:"username"`
	MainPhoto json.RawMessage `json:"main_photo,omitempty"`
}

func (u RemoteUser) name() string {
	if u.Name == nil {
		return ""
	}
	return *u.Name
}

func (u RemoteUser) username() string {
	if u.Username == nil {
		return ""
	}
	return *u.Username
}

func (u RemoteUser) hasName() bool {
	return strings.TrimSpace(u.name()) != ""
}

func (u RemoteUser) hasPhoto() bool {
	p := bytes.TrimSpace(u.MainPhoto)
	return len(p) > 0 && !bytes.Equal(p, []byte("null")) && !bytes.Equal(p, []byte(`""`))
}

// DisplayName is the name shown in reports: name, else username, else id.
func (u RemoteUser) DisplayName() string {
	if u.hasName() {
		return u.name()
	}
	if u.username() != "" {
		return u.username()
	}
	return u.ID
}

var userColumns = []string{"id", "name", "username", "main_photo"}

// LoadUsers reads the whole users table page by page. Any failed page aborts.
func LoadUsers(ctx context.Context, s store.Store, pageSize int) ([]RemoteUser, error) {
	rows, err := store.SelectAll(ctx, s, UsersTable, store.Query{Columns: userColumns, Order: "id"}, pageSize)
	if err != nil {
		return nil, errors.Wrap(err, "load users")
	}
	users := make([]RemoteUser, 0, len(rows))
	if err := store.Decode(rows, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Package verify prints row counts and a few joined samples so an operator
// can eyeball the result of a migration.
package verify

import (
	"context"
	"fmt"
	"io"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/cuties-app/cuties/pkg/store"
)

// Tables are counted in this order.
var Tables = []string{
	"users", "user_links", "projects", "videos", "likes",
	"met_ups", "messages", "friend_testimonials", "app_testimonials", "pairings",
}

const (
	sampleUsers    = 5
	sampleMessages = 3
	sampleLikes    = 5
	// candidate rows scanned to find samples whose users resolve
	sampleScan = 100
)

type Count struct {
	Table string
	Rows  int64
	Err   error
}

type SampleUser struct {
	Username string  `json:"username"`
	Email    *string `json:"email"`
}

type SampleMessage struct {
	Sender    string
	Recipient string
	Content   string
}

type SampleLike struct {
	Sender   string
	Receiver string
}

type Report struct {
	Counts   []Count
	Users    []SampleUser
	Messages []SampleMessage
	Likes    []SampleLike
}

type Verifier struct {
	store store.Store
	log   logrus.FieldLogger
}

func New(s store.Store, log logrus.FieldLogger) *Verifier {
	return &Verifier{store: s, log: log}
}

// Run counts every table and collects the samples. A failed count or sample
// query is logged and the run moves on.
func (v *Verifier) Run(ctx context.Context) *Report {
	r := &Report{}
	for _, table := range Tables {
		n, err := v.store.Count(ctx, table)
		if err != nil {
			v.log.WithField("table", table).WithError(err).Error("count failed")
		}
		r.Counts = append(r.Counts, Count{Table: table, Rows: n, Err: err})
	}

	var err error
	if r.Users, err = v.sampleUsers(ctx); err != nil {
		v.log.WithError(err).Error("sample users failed")
	}
	if r.Messages, err = v.sampleMessages(ctx); err != nil {
		v.log.WithError(err).Error("sample messages failed")
	}
	if r.Likes, err = v.sampleLikes(ctx); err != nil {
		v.log.WithError(err).Error("sample likes failed")
	}
	return r
}

func (v *Verifier) sampleUsers(ctx context.Context) ([]SampleUser, error) {
	rows, err := v.store.Select(ctx, "users", store.Query{
		Columns: []string{"username", "email"},
		Filters: []store.Filter{store.NotNull("username")},
		Limit:   sampleUsers,
	})
	if err != nil {
		return nil, err
	}
	var out []SampleUser
	if err := store.Decode(rows, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// usernames resolves user ids to usernames; ids without a username are absent.
func (v *Verifier) usernames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := v.store.Select(ctx, "users", store.Query{
		Columns: []string{"id", "username"},
		Filters: []store.Filter{store.In("id", ids...), store.NotNull("username")},
	})
	if err != nil {
		return nil, errors.Wrap(err, "resolve usernames")
	}
	for _, r := range rows {
		id, _ := r["id"].(string)
		name, _ := r["username"].(string)
		if id != "" && name != "" {
			out[id] = name
		}
	}
	return out, nil
}

// pairs reads up to sampleScan rows of table and resolves both id columns.
func (v *Verifier) pairs(ctx context.Context, table, left, right string, extra ...string) ([]store.Row, map[string]string, error) {
	rows, err := v.store.Select(ctx, table, store.Query{
		Columns: append([]string{left, right}, extra...),
		Limit:   sampleScan,
	})
	if err != nil {
		return nil, nil, err
	}
	seen := map[string]struct{}{}
	var ids []string
	for _, r := range rows {
		for _, col := range []string{left, right} {
			if id, ok := r[col].(string); ok && id != "" {
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
	}
	names, err := v.usernames(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return rows, names, nil
}

func (v *Verifier) sampleMessages(ctx context.Context) ([]SampleMessage, error) {
	rows, names, err := v.pairs(ctx, "messages", "sender_id", "recipient_id", "content")
	if err != nil {
		return nil, err
	}
	var out []SampleMessage
	for _, r := range rows {
		sender, ok := names[str(r["sender_id"])]
		if !ok {
			continue
		}
		out = append(out, SampleMessage{
			Sender:    sender,
			Recipient: names[str(r["recipient_id"])],
			Content:   truncate(str(r["content"]), 50),
		})
		if len(out) == sampleMessages {
			break
		}
	}
	return out, nil
}

func (v *Verifier) sampleLikes(ctx context.Context) ([]SampleLike, error) {
	rows, names, err := v.pairs(ctx, "likes", "sender_id", "receiver_id")
	if err != nil {
		return nil, err
	}
	var out []SampleLike
	for _, r := range rows {
		sender, ok1 := names[str(r["sender_id"])]
		receiver, ok2 := names[str(r["receiver_id"])]
		if !ok1 || !ok2 {
			continue
		}
		out = append(out, SampleLike{Sender: sender, Receiver: receiver})
		if len(out) == sampleLikes {
			break
		}
	}
	return out, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Print writes the report in the operator-facing layout.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Database Row Counts ===")
	fmt.Fprintln(w)
	for _, c := range r.Counts {
		if c.Err != nil {
			fmt.Fprintf(w, "%s: error: %v\n", c.Table, c.Err)
			continue
		}
		fmt.Fprintf(w, "%s: %d rows\n", c.Table, c.Rows)
	}

	fmt.Fprintln(w, "\n=== Sample Users (with username) ===")
	for _, u := range r.Users {
		email := "no email"
		if u.Email != nil && *u.Email != "" {
			email = *u.Email
		}
		fmt.Fprintf(w, "  %s | %s\n", u.Username, email)
	}

	fmt.Fprintln(w, "\n=== Sample Messages ===")
	for _, m := range r.Messages {
		fmt.Fprintf(w, "  %s -> %s: %s...\n", m.Sender, m.Recipient, m.Content)
	}

	fmt.Fprintln(w, "\n=== Sample Likes ===")
	for _, l := range r.Likes {
		fmt.Fprintf(w, "  %s <3 %s\n", l.Sender, l.Receiver)
	}
}

// Failed reports how many table counts failed.
func (r *Report) Failed() int {
	n := 0
	for _, c := range r.Counts {
		if c.Err != nil {
			n++
		}
	}
	return n
}

package importer

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/cuties-app/cuties/pkg/csvsource"
	"github.com/cuties-app/cuties/pkg/store"
)

type messageRow struct {
	SenderID    string  `json:"sender_id"`
	RecipientID string  `json:"recipient_id"`
	Content     string  `json:"content"`
	CreatedAt   *string `json:"created_at"`
}

// Messages imports the All-Messages export. A message needs content and both
// the sender (Creator) and the recipient resolved; anything else is skipped.
func (im *Importer) Messages(ctx context.Context, records []csvsource.Record) (*Result, error) {
	im.log.WithField("records", len(records)).Info("messages to migrate")

	idx, err := im.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{Summary: Summary{Table: MessagesTable, Total: len(records)}}
	payload := make([]messageRow, 0, len(records))
	for i, rec := range records {
		recipient := rec.Trimmed("Recipient")
		creator := rec.Trimmed("Creator")
		content := rec.Trimmed("Value")

		if content == "" {
			res.Summary.Skipped++
			continue
		}

		sender := idx.Find(creator)
		target := idx.Find(recipient)
		if sender == nil || target == nil {
			res.Summary.Skipped++
			u := Unmatched{Line: i + 2, Subject: recipient, Author: creator, Preview: preview(content)}
			switch {
			case sender == nil && target == nil:
				u.Reason = "sender and recipient not found"
				u.Suggestions = idx.Suggest(recipient, suggestionsPerName)
			case sender == nil:
				u.Reason = "sender not found"
				u.Suggestions = idx.Suggest(creator, suggestionsPerName)
			default:
				u.Reason = "recipient not found"
				u.Suggestions = idx.Suggest(recipient, suggestionsPerName)
			}
			res.Unmatched = append(res.Unmatched, u)
			continue
		}

		row := messageRow{SenderID: sender.ID, RecipientID: target.ID, Content: content}
		if raw := rec.Trimmed("Creation Date"); raw != "" {
			ts := timestampOrNow(raw, im.opts.Now)
			row.CreatedAt = &ts
		}
		payload = append(payload, row)
	}
	res.Summary.Matched = len(payload)
	res.Summary.Unmatched = len(res.Unmatched)

	im.log.WithFields(logrus.Fields{
		"prepared": len(payload),
		"skipped":  res.Summary.Skipped,
	}).Info("messages prepared")

	rows, err := store.RowsOf(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode messages")
	}
	err = im.write(ctx, &res.Summary, rows, im.batchSize(MessagesBatchSize))
	im.observe(res.Summary)
	if err != nil {
		return res, err
	}
	return res, nil
}

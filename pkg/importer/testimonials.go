package importer

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/cuties-app/cuties/pkg/csvsource"
	"github.com/cuties-app/cuties/pkg/store"
)

// testimonial is one parsed row of the FriendTestimonials export.
type testimonial struct {
	Subject      string
	Content      string
	CreationDate string
	ModifiedDate string
	Slug         string
	Author       string
	BubbleID     string
}

func parseTestimonial(r csvsource.Record) testimonial {
	return testimonial{
		Subject:      r.Get("Subject", "subject"),
		Content:      r.Get("Value", "value", "content"),
		CreationDate: r.Get("Creation Date", "creation_date"),
		ModifiedDate: r.Get("Modified Date", "modified_date"),
		Slug:         r.Get("Slug", "slug"),
		Author:       r.Get("Creator", "creator", "author"),
		BubbleID:     r.Get("unique id", "bubble_id"),
	}
}

type testimonialRow struct {
	SubjectID string  `json:"subject_id"`
	AuthorID  *string `json:"author_id"`
	Content   string  `json:"content"`
	CreatedAt string  `json:"created_at"`
}

// Testimonials imports friend testimonials. Only the subject has to resolve;
// an unknown author is stored as null.
func (im *Importer) Testimonials(ctx context.Context, records []csvsource.Record) (*Result, error) {
	im.log.WithField("records", len(records)).Info("testimonials in csv")

	idx, err := im.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{Summary: Summary{Table: TestimonialsTable, Total: len(records)}}
	payload := make([]testimonialRow, 0, len(records))
	for i, rec := range records {
		t := parseTestimonial(rec)
		if strings.TrimSpace(t.Content) == "" {
			im.log.WithField("subject", t.Subject).Debug("skipping empty testimonial")
			res.Summary.Skipped++
			continue
		}

		subject := idx.Find(t.Subject)
		if subject == nil {
			res.Unmatched = append(res.Unmatched, Unmatched{
				Line:        i + 2,
				Reason:      "subject not found",
				Subject:     t.Subject,
				Author:      t.Author,
				Preview:     preview(t.Content),
				Suggestions: idx.Suggest(t.Subject, suggestionsPerName),
			})
			continue
		}

		payload = append(payload, testimonialRow{
			SubjectID: subject.ID,
			AuthorID:  userID(idx.Find(t.Author)),
			Content:   t.Content,
			CreatedAt: timestampOrNow(t.CreationDate, im.opts.Now),
		})
	}
	res.Summary.Matched = len(payload)
	res.Summary.Unmatched = len(res.Unmatched)

	im.log.WithFields(logrus.Fields{
		"matched":   res.Summary.Matched,
		"unmatched": res.Summary.Unmatched,
	}).Info("testimonials matched")
	for _, u := range res.Unmatched {
		im.log.WithFields(logrus.Fields{"subject": u.Subject, "author": u.Author}).Warn("unmatched testimonial")
	}

	rows, err := store.RowsOf(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode testimonials")
	}
	err = im.write(ctx, &res.Summary, rows, im.batchSize(TestimonialsBatchSize))
	im.observe(res.Summary)
	if err != nil {
		return res, err
	}
	return res, nil
}

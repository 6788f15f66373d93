package contactsync

import (
	"cmp"
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/config"
	"github.com/sells-group/leads-cli/internal/resilience"
	"github.com/sells-group/leads-cli/pkg/mailchimp"
)

// MailchimpTarget pushes members to one Mailchimp audience.
type MailchimpTarget struct {
	client     mailchimp.Client
	listID     string
	stageField string
	scoreField string
	batchSize  int
	retry      resilience.RetryPolicy
}

// NewMailchimpTarget creates a Mailchimp target for listID.
func NewMailchimpTarget(client mailchimp.Client, listID string, cfg config.MailchimpConfig, retry resilience.RetryPolicy) *MailchimpTarget {
	size := cfg.BatchSize
	if size <= 0 || size > mailchimp.MaxBatchSize {
		size = mailchimp.MaxBatchSize
	}
	return &MailchimpTarget{
		client:     client,
		listID:     listID,
		stageField: cfg.StageMergeField,
		scoreField: cfg.ScoreMergeField,
		batchSize:  size,
		retry:      retry.WithLogging("mailchimp", "batch_subscribe"),
	}
}

// Name implements Target.
func (t *MailchimpTarget) Name() string { return "mailchimp" }

// Push upserts members in batches. Members that already existed have their
// tags added separately since batch upserts only tag new members. A failed
// batch marks its own members as errors and the remaining batches still run;
// the returned error then summarizes the failed batches.
func (t *MailchimpTarget) Push(ctx context.Context, members []Member) ([]Result, error) {
	results := make([]Result, 0, len(members))
	batches := chunk(members, t.batchSize)
	var firstErr error
	failed := 0
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			results = append(results, failBatch(batch, err)...)
			failed++
			firstErr = cmp.Or(firstErr, err)
			continue
		}

		payload := make([]mailchimp.Member, len(batch))
		for i, m := range batch {
			payload[i] = t.toMember(m)
		}
		res, err := resilience.DoVal(ctx, t.retry, func(ctx context.Context) (*mailchimp.BatchResult, error) {
			return t.client.BatchSubscribe(ctx, t.listID, payload)
		})
		if err != nil {
			zap.L().Warn("mailchimp: batch failed", zap.Int("members", len(batch)), zap.Error(err))
			results = append(results, failBatch(batch, err)...)
			failed++
			firstErr = cmp.Or(firstErr, err)
			continue
		}
		results = append(results, t.collect(ctx, batch, res)...)
	}

	if firstErr != nil {
		return results, eris.Wrapf(firstErr, "mailchimp: %d of %d batches failed", failed, len(batches))
	}
	return results, nil
}

// failBatch reports every member of a batch that was not accepted.
func failBatch(batch []Member, err error) []Result {
	out := make([]Result, len(batch))
	for i, m := range batch {
		out[i] = Result{Email: m.Email, Status: StatusError, Error: err.Error()}
	}
	return out
}

func (t *MailchimpTarget) toMember(m Member) mailchimp.Member {
	merge := map[string]any{}
	if m.FirstName != "" {
		merge["FNAME"] = m.FirstName
	}
	if m.LastName != "" {
		merge["LNAME"] = m.LastName
	}
	if t.stageField != "" && m.Stage != "" {
		merge[t.stageField] = string(m.Stage)
	}
	if t.scoreField != "" {
		merge[t.scoreField] = m.Score
	}
	return mailchimp.Member{
		EmailAddress: m.Email,
		StatusIfNew:  "subscribed",
		MergeFields:  merge,
		Tags:         m.Tags,
	}
}

// collect maps a batch response back onto the input members. Members the
// response does not mention are reported as errors.
func (t *MailchimpTarget) collect(ctx context.Context, batch []Member, res *mailchimp.BatchResult) []Result {
	status := make(map[string]Result, len(batch))
	if res != nil {
		for _, ref := range res.NewMembers {
			e := strings.ToLower(ref.EmailAddress)
			status[e] = Result{Email: e, Status: StatusCreated}
		}
		for _, ref := range res.UpdatedMembers {
			e := strings.ToLower(ref.EmailAddress)
			status[e] = Result{Email: e, Status: StatusUpdated}
		}
		for _, me := range res.Errors {
			e := strings.ToLower(me.EmailAddress)
			status[e] = Result{Email: e, Status: StatusError, Error: strings.TrimSpace(me.ErrorCode + " " + me.Error)}
		}
	}

	out := make([]Result, 0, len(batch))
	for _, m := range batch {
		r, ok := status[m.Email]
		if !ok {
			r = Result{Email: m.Email, Status: StatusError, Error: "missing from batch response"}
		}
		if r.Status == StatusUpdated && len(m.Tags) > 0 {
			if err := t.tag(ctx, m); err != nil {
				zap.L().Warn("mailchimp: tag update failed", zap.String("email", m.Email), zap.Error(err))
				r = Result{Email: m.Email, Status: StatusError, Error: err.Error()}
			}
		}
		out = append(out, r)
	}
	return out
}

func (t *MailchimpTarget) tag(ctx context.Context, m Member) error {
	updates := make([]mailchimp.TagUpdate, len(m.Tags))
	for i, name := range m.Tags {
		updates[i] = mailchimp.TagUpdate{Name: name, Status: "active"}
	}
	return resilience.Do(ctx, t.retry, func(ctx context.Context) error {
		return t.client.UpdateTags(ctx, t.listID, m.Email, updates)
	})
}

package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// maxBatchSize is the Salesforce Collections API limit per request.
const maxBatchSize = 200

// LeadUpsert is one lead to push. Fields are written on both create and
// update; CreateFields are added only when the Lead is new.
type LeadUpsert struct {
	Email        string
	Fields       map[string]any
	CreateFields map[string]any
}

// UpsertResult is the outcome for one email.
type UpsertResult struct {
	Email   string
	ID      string
	Created bool
	Err     string
}

// UpsertLeads matches leads by email, updates the ones that exist and
// inserts the rest, in batches of 200. Results follow input order.
func UpsertLeads(ctx context.Context, c Client, leads []LeadUpsert) ([]UpsertResult, error) {
	if len(leads) == 0 {
		return nil, nil
	}

	emails := make([]string, len(leads))
	for i, l := range leads {
		emails[i] = l.Email
	}
	existing, err := FindLeadsByEmail(ctx, c, emails)
	if err != nil {
		return nil, err
	}

	results := make([]UpsertResult, len(leads))
	var updates []CollectionRecord
	var updateIdx []int
	var inserts []map[string]any
	var insertIdx []int

	for i, l := range leads {
		results[i].Email = l.Email
		if sf, ok := existing[strings.ToLower(l.Email)]; ok {
			updates = append(updates, CollectionRecord{ID: sf.ID, Fields: l.Fields})
			updateIdx = append(updateIdx, i)
			continue
		}
		rec := make(map[string]any, len(l.Fields)+len(l.CreateFields)+1)
		for k, v := range l.CreateFields {
			rec[k] = v
		}
		for k, v := range l.Fields {
			rec[k] = v
		}
		rec["Email"] = l.Email
		inserts = append(inserts, rec)
		insertIdx = append(insertIdx, i)
	}

	for start := 0; start < len(updates); start += maxBatchSize {
		end := min(start+maxBatchSize, len(updates))
		res, err := c.UpdateCollection(ctx, "Lead", updates[start:end])
		if err != nil {
			return results, eris.Wrap(err, fmt.Sprintf("sf: update leads batch %d-%d", start, end))
		}
		apply(results, updateIdx[start:end], res, false)
	}

	for start := 0; start < len(inserts); start += maxBatchSize {
		end := min(start+maxBatchSize, len(inserts))
		res, err := c.InsertCollection(ctx, "Lead", inserts[start:end])
		if err != nil {
			return results, eris.Wrap(err, fmt.Sprintf("sf: insert leads batch %d-%d", start, end))
		}
		apply(results, insertIdx[start:end], res, true)
	}

	return results, nil
}

func apply(results []UpsertResult, idx []int, res []CollectionResult, created bool) {
	for j, i := range idx {
		if j >= len(res) {
			results[i].Err = "no result returned"
			continue
		}
		r := res[j]
		if !r.Success {
			results[i].Err = r.Message()
			continue
		}
		results[i].ID = r.ID
		results[i].Created = created
	}
}

// Package catalog reads the subject index of a collection and provides the
// search and grouping rules of the lead list.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/mitchellh/mapstructure"
)

// UnknownOrganization groups subjects without an organization.
const UnknownOrganization = "Unknown"

type indexDocument struct {
	Leads []map[string]any `json:"leads"`
}

// Load reads <collection>/index into summaries, in stored order.
func Load(ctx context.Context, store ports.DocumentStore, collection string) ([]domain.SubjectSummary, error) {
	obj, err := store.Get(ctx, domain.IndexKey(collection))
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	return Parse(obj.Body)
}

// Parse decodes an index body.
func Parse(body []byte) ([]domain.SubjectSummary, error) {
	var idx indexDocument
	if err := json.Unmarshal(body, &idx); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}

	out := make([]domain.SubjectSummary, 0, len(idx.Leads))
	for i, raw := range idx.Leads {
		s, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode index entry %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Encode renders summaries as an index body.
func Encode(summaries []domain.SubjectSummary) ([]byte, error) {
	return json.MarshalIndent(struct {
		Leads []domain.SubjectSummary `json:"leads"`
	}{Leads: summaries}, "", "  ")
}

// Summarize extracts the summary fields of a document's subject attributes.
func Summarize(doc *domain.FlowDocument) (domain.SubjectSummary, error) {
	s, err := decode(doc.Subject.Map())
	if err != nil {
		return domain.SubjectSummary{}, err
	}
	s.Identity = doc.Identity
	return s, nil
}

// Rebuild summarises every lead document under the collection, sorted by identity.
func Rebuild(ctx context.Context, store ports.DocumentStore, lister ports.Lister, collection string) ([]domain.SubjectSummary, error) {
	prefix := domain.LeadKey(collection, "") + "/"
	keys, err := lister.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	sort.Strings(keys)

	out := make([]domain.SubjectSummary, 0, len(keys))
	for _, key := range keys {
		identity := strings.TrimPrefix(key, prefix)
		obj, err := store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		doc, err := domain.ParseDocument(identity, obj.Body)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", key, err)
		}
		s, err := Summarize(doc)
		if err != nil {
			return nil, fmt.Errorf("summarise %s: %w", key, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Filter keeps the summaries whose name, organization or location contains
// query, ignoring case. An empty query keeps everything.
func Filter(summaries []domain.SubjectSummary, query string) []domain.SubjectSummary {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return summaries
	}

	var out []domain.SubjectSummary
	for _, s := range summaries {
		if strings.Contains(strings.ToLower(s.Name), q) ||
			strings.Contains(strings.ToLower(s.Organization), q) ||
			strings.Contains(strings.ToLower(s.Location), q) {
			out = append(out, s)
		}
	}
	return out
}

// Group is the subjects of one organization.
type Group struct {
	Organization string                  `json:"organization"`
	Subjects     []domain.SubjectSummary `json:"subjects"`
}

// GroupByOrganization groups summaries in first-seen organization order.
func GroupByOrganization(summaries []domain.SubjectSummary) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, s := range summaries {
		org := s.Organization
		if org == "" {
			org = UnknownOrganization
		}
		i, ok := index[org]
		if !ok {
			i = len(groups)
			index[org] = i
			groups = append(groups, Group{Organization: org})
		}
		groups[i].Subjects = append(groups[i].Subjects, s)
	}
	return groups
}

func decode(raw map[string]any) (domain.SubjectSummary, error) {
	var s domain.SubjectSummary
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &s,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return s, err
	}
	if err := dec.Decode(raw); err != nil {
		return s, err
	}
	return s, nil
}

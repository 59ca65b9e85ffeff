package output

import (
	"fmt"
	"io"
	"strconv"

	"github.com/agentstation/crmsync/pkg/checkpoint"
	"github.com/agentstation/crmsync/pkg/matcher"
	"github.com/agentstation/crmsync/pkg/records"
	pkgsync "github.com/agentstation/crmsync/pkg/sync"
)

// Render writes raw as JSON or YAML, or its table view for table output.
func Render(w io.Writer, format Format, raw any, view func() Data) error {
	switch format {
	case FormatJSON, FormatYAML:
		return NewFormatter(format).Format(w, raw)
	default:
		return NewFormatter(FormatTable).Format(w, view())
	}
}

// SyncResultData is the table view of a sync run.
func SyncResultData(r *pkgsync.Result) Data {
	rows := [][]string{
		{"Run", r.RunID},
		{"Status", string(r.Status())},
		{"Processed", strconv.Itoa(r.Processed)},
		{"Inserted", strconv.Itoa(r.Inserted)},
		{"Updated", strconv.Itoa(r.Updated)},
		{"Skipped", strconv.Itoa(r.Skipped)},
		{"Deleted", strconv.Itoa(r.Deleted)},
		{"Mapping errors", strconv.Itoa(r.MappingErrors)},
		{"Persistence errors", strconv.Itoa(r.PersistenceErrors)},
		{"Network errors", strconv.Itoa(r.NetworkErrors)},
		{"Rate limit errors", strconv.Itoa(r.RateLimitErrors)},
		{"Pages", strconv.Itoa(r.Pages)},
		{"Calls", fmt.Sprintf("%d list, %d detail", r.ListCalls, r.DetailCalls)},
		{"Complete", strconv.FormatBool(r.Complete)},
		{"Sweep", strconv.FormatBool(r.SweepPerformed)},
		{"Duration", r.Duration.String()},
	}
	if r.PriorErrors > 0 {
		rows = append(rows, []string{"Errors before resume", strconv.Itoa(r.PriorErrors)})
	}
	if r.Reason != "" {
		rows = append(rows, []string{"Reason", r.Reason})
	}
	return Data{
		Headers:         []string{"Field", "Value"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignLeft, AlignRight},
		Footer:          r.Summary(),
	}
}

// FailuresData lists the failures kept on a sync result.
func FailuresData(failures []pkgsync.Failure) Data {
	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		status := ""
		if f.Status != 0 {
			status = strconv.Itoa(f.Status)
		}
		rows = append(rows, []string{strconv.Itoa(f.Page), f.RecordID, string(f.Category), status, f.Message})
	}
	return Data{
		Headers: []string{"Page", "Record", "Category", "Status", "Message"},
		Rows:    rows,
	}
}

// ConsolidationData is the per-source table of a consolidation run.
func ConsolidationData(entries []records.ConsolidationLogEntry, summary string) Data {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Source,
			strconv.Itoa(e.Processed),
			strconv.Itoa(e.Inserted),
			strconv.Itoa(e.Updated),
			strconv.Itoa(e.Unchanged),
			strconv.Itoa(e.Excluded),
			strconv.Itoa(e.Errors),
			strconv.FormatInt(e.ElapsedMS, 10) + "ms",
			e.Message,
		})
	}
	return Data{
		Headers: []string{"Source", "Processed", "Inserted", "Updated", "Unchanged", "Excluded", "Errors", "Elapsed", "Message"},
		Rows:    rows,
		ColumnAlignment: []Align{
			AlignLeft, AlignRight, AlignRight, AlignRight, AlignRight,
			AlignRight, AlignRight, AlignRight, AlignLeft,
		},
		Footer: summary,
	}
}

// CheckpointData shows a saved checkpoint, or a note when there is none.
func CheckpointData(p *checkpoint.Progress) Data {
	if p == nil {
		return Data{Headers: []string{"Checkpoint"}, Rows: [][]string{{"none"}}}
	}
	return Data{
		Headers: []string{"Field", "Value"},
		Rows: [][]string{
			{"Run", p.RunID},
			{"Last page", strconv.Itoa(p.Page)},
			{"Next page", strconv.Itoa(p.NextPage())},
			{"Processed", strconv.Itoa(p.Processed)},
			{"Inserted", strconv.Itoa(p.Inserted)},
			{"Updated", strconv.Itoa(p.Updated)},
			{"Skipped", strconv.Itoa(p.Skipped)},
			{"Errors", strconv.Itoa(p.Errors)},
			{"Started", p.StartedAt.String()},
			{"Saved", p.SavedAt.String()},
		},
		ColumnAlignment: []Align{AlignLeft, AlignRight},
	}
}

// MatchResult is the outcome of a store lookup.
type MatchResult struct {
	Token   string `json:"token" yaml:"token"`
	Tier    string `json:"tier" yaml:"tier"`
	StoreID string `json:"store_id,omitempty" yaml:"store_id,omitempty"`
	Name    string `json:"store_name,omitempty" yaml:"store_name,omitempty"`
}

// NewMatchResult builds a MatchResult.
func NewMatchResult(token string, s *records.StoreEntity, tier matcher.Tier) MatchResult {
	m := MatchResult{Token: token, Tier: tier.String()}
	if s != nil {
		m.StoreID = s.ID
		m.Name = s.Name
	}
	return m
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/justmadeid/social-services/internal/cache"
	"github.com/justmadeid/social-services/internal/credentials"
	"github.com/justmadeid/social-services/internal/models"
	"github.com/justmadeid/social-services/internal/version"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

const maxTextWidth = 60

// render writes v in the requested format. Table output falls back to JSON
// for values without a table layout.
func render(w io.Writer, format string, v any) error {
	switch format {
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case outputTable:
		if renderTable(w, v) {
			return nil
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func renderTable(w io.Writer, v any) bool {
	switch v := v.(type) {
	case *models.UsersResult:
		usersTable(w, v)
	case *models.TimelineResult:
		timelineTables(w, v)
	case *models.LoginResult:
		keyValueTable(w, []table.Row{
			{"Status", v.Status},
			{"Message", v.Message},
			{"Credential", v.CredentialName},
			{"Cookies", v.Cookies},
			{"Marker confirmed", v.Confirmed},
		})
	case models.LoginStatus:
		rows := []table.Row{
			{"State file", v.StateFilePath},
			{"Exists", v.StateFileExists},
			{"Size (bytes)", v.StateFileSize},
			{"Cookies", v.CookiesCount},
			{"Assessment", v.Assessment},
			{"Has credentials", v.HasCredentials},
			{"Login required", v.LoginRequired},
		}
		if v.Error != "" {
			rows = append(rows, table.Row{"Error", v.Error})
		}
		keyValueTable(w, rows)
	case cache.HealthStatus:
		keyValueTable(w, []table.Row{{"Status", v.Status}, {"Backend", v.Backend}, {"Keys", v.Keys}})
	case []credentialRow:
		credentialsTable(w, v)
	case version.Info:
		fmt.Fprintln(w, v.String())
	default:
		return false
	}
	return true
}

func keyValueTable(w io.Writer, rows []table.Row) {
	t := newTable(w)
	t.AppendRows(rows)
	t.Render()
}

func usersTable(w io.Writer, r *models.UsersResult) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Screen name", "Name", "Followers", "Following", "Tweets", "Verified", "Private"})
	for _, u := range r.Users {
		t.AppendRow(table.Row{"@" + u.ScreenName, u.Name, u.Followers, u.Following, u.Tweets, u.Verified, u.Private})
	}
	t.AppendFooter(table.Row{"", "Total", len(r.Users), "", "", "", metaSummary(r.Metadata)})
	t.Render()
}

func timelineTables(w io.Writer, r *models.TimelineResult) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Date", "Tweet", "Likes", "Retweets", "Replies", "Views", "Engagement"})
	for _, tw := range r.Timelines {
		t.AppendRow(table.Row{tw.Date, truncate(tw.Text, maxTextWidth), tw.Likes, tw.Retweets, tw.Replies, tw.Views, tw.Engagement})
	}
	t.AppendFooter(table.Row{"", "Total", len(r.Timelines), "", "", "", metaSummary(r.Metadata)})
	t.Render()

	if len(r.Hashtags) > 0 {
		ht := newTable(w)
		ht.AppendHeader(table.Row{"Hashtag", "Count", "%"})
		for _, h := range r.Hashtags {
			ht.AppendRow(table.Row{"#" + h.Hashtag, h.Count, h.Percentage})
		}
		ht.Render()
	}
	if len(r.Mentions) > 0 {
		mt := newTable(w)
		mt.AppendHeader(table.Row{"Mention", "Count", "%"})
		for _, m := range r.Mentions {
			mt.AppendRow(table.Row{"@" + m.Mention, m.Count, m.Percentage})
		}
		mt.Render()
	}
}

// credentialRow is the listing view of a stored credential. Sealed
// secrets are never part of it.
type credentialRow struct {
	Name              string     `json:"name" yaml:"name"`
	Username          string     `json:"username" yaml:"username"`
	Active            bool       `json:"active" yaml:"active"`
	LastLoginAttempt  *time.Time `json:"last_login_attempt,omitempty" yaml:"last_login_attempt,omitempty"`
	LoginSuccessCount int        `json:"login_success_count" yaml:"login_success_count"`
	LoginFailureCount int        `json:"login_failure_count" yaml:"login_failure_count"`
	CreatedAt         time.Time  `json:"created_at" yaml:"created_at"`
}

func credentialRows(creds []*credentials.Credential) []credentialRow {
	rows := make([]credentialRow, 0, len(creds))
	for _, c := range creds {
		rows = append(rows, credentialRow{
			Name:              c.Name,
			Username:          c.Username,
			Active:            c.IsActive,
			LastLoginAttempt:  c.LastLoginAttempt,
			LoginSuccessCount: c.LoginSuccessCount,
			LoginFailureCount: c.LoginFailureCount,
			CreatedAt:         c.CreatedAt,
		})
	}
	return rows
}

func credentialsTable(w io.Writer, rows []credentialRow) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Name", "Username", "Active", "Last attempt", "OK", "Failed", "Created"})
	for _, c := range rows {
		last := "never"
		if c.LastLoginAttempt != nil {
			last = c.LastLoginAttempt.Format(time.DateTime)
		}
		t.AppendRow(table.Row{c.Name, c.Username, c.Active, last, c.LoginSuccessCount, c.LoginFailureCount, c.CreatedAt.Format(time.DateTime)})
	}
	t.Render()
}

func metaSummary(m models.Metadata) string {
	parts := []string{strconv.FormatFloat(m.ExecutionTime, 'f', 2, 64) + "s"}
	if m.Cached {
		parts = append(parts, "cached")
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

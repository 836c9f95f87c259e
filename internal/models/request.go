// Package models defines the request, record and result types shared by the
// scraping engine, the task queue and the HTTP surface.
package models

// Operation names a scraping capability. The value is part of the cache key.
type Operation string

// Operations understood by the engine and the task queue.
const (
	OpSearchUser Operation = "search_user"
	OpFollowing  Operation = "following"
	OpFollowers  Operation = "followers"
	OpTimeline   Operation = "timeline"
	OpLogin      Operation = "login"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpSearchUser, OpFollowing, OpFollowers, OpTimeline, OpLogin:
		return true
	}
	return false
}

// Subjective reports whether results of op are keyed on a single username.
func (op Operation) Subjective() bool {
	return op == OpFollowing || op == OpFollowers || op == OpTimeline
}

// SearchRequest asks for users matching a free-text query.
type SearchRequest struct {
	Query string `json:"q" doc:"Search query" minLength:"1"`
	Limit int    `json:"limit,omitempty" doc:"Number of results" minimum:"0" maximum:"100"`
}

// Params returns the cache-key parameters.
func (r SearchRequest) Params() map[string]any {
	return map[string]any{"query": r.Query, "limit": r.Limit}
}

// GraphRequest asks for the following or followers list of a user.
type GraphRequest struct {
	Username string `json:"username" doc:"Account handle" minLength:"1"`
	Limit    int    `json:"limit,omitempty" doc:"Number of results" minimum:"0" maximum:"100"`
}

// Params returns the cache-key parameters.
func (r GraphRequest) Params() map[string]any {
	return map[string]any{"username": r.Username, "limit": r.Limit}
}

// TimelineRequest asks for the recent tweets of a user.
// IncludeAnalysis is a pointer so an omitted field can default to true.
type TimelineRequest struct {
	Username        string `json:"username" doc:"Account handle" minLength:"1"`
	Count           int    `json:"count,omitempty" doc:"Number of tweets to analyze" minimum:"0" maximum:"100"`
	IncludeAnalysis *bool  `json:"include_analysis,omitempty" doc:"Include hashtag/mention analysis"`
}

// Params returns the cache-key parameters. IncludeAnalysis is presentation only
// and does not take part in the key.
func (r TimelineRequest) Params() map[string]any {
	return map[string]any{"username": r.Username, "tweet_count": r.Count}
}

// WantsAnalysis reports whether hashtag and mention stats should be returned.
func (r TimelineRequest) WantsAnalysis() bool {
	return r.IncludeAnalysis == nil || *r.IncludeAnalysis
}

// LoginRequest starts a login. CredentialName selects a stored credential;
// Username/Password supply one directly and take precedence.
type LoginRequest struct {
	CredentialName string `json:"credential_name,omitempty" doc:"Stored credential to use"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	TOTPSecret     string `json:"totp_secret,omitempty"`
}

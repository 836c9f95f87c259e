package models

// UserRecord is a normalized account profile. Search results fill every field;
// following/followers results leave Private/Verified at their defaults when the
// platform omits them.
type UserRecord struct {
	UserID     string `json:"user_id" yaml:"user_id"`
	Name       string `json:"name" yaml:"name"`
	ScreenName string `json:"screen_name" yaml:"screen_name"`
	Bio        string `json:"bio" yaml:"bio"`
	Location   string `json:"location" yaml:"location"`
	Followers  int    `json:"followers" yaml:"followers"`
	Following  int    `json:"following" yaml:"following"`
	Tweets     int    `json:"tweets" yaml:"tweets"`
	Favorites  int    `json:"favorites" yaml:"favorites"`
	Private    bool   `json:"private" yaml:"private"`
	Verified   bool   `json:"verified" yaml:"verified"`
	Avatar     string `json:"avatar" yaml:"avatar"`
	URL        string `json:"url" yaml:"url"`
	Created    string `json:"created" yaml:"created"`
}

// TweetRecord is a normalized timeline entry.
type TweetRecord struct {
	ID         string   `json:"id" yaml:"id"`
	UserID     string   `json:"user_id" yaml:"user_id"`
	Date       string   `json:"date" yaml:"date"`
	Text       string   `json:"tweets" yaml:"tweets"`
	ScreenName string   `json:"screen_name" yaml:"screen_name"`
	Name       string   `json:"name" yaml:"name"`
	Retweets   int      `json:"retweet" yaml:"retweet"`
	Replies    int      `json:"replies" yaml:"replies"`
	MediaURL   string   `json:"link_media" yaml:"link_media"`
	Likes      int      `json:"likes" yaml:"likes"`
	Link       string   `json:"link" yaml:"link"`
	Views      int      `json:"views" yaml:"views"`
	Quotes     int      `json:"quote" yaml:"quote"`
	Engagement float64  `json:"engagement" yaml:"engagement"`
	Hashtags   []string `json:"hashtags" yaml:"hashtags"`
	Mentions   []string `json:"mentions" yaml:"mentions"`
	Source     string   `json:"source" yaml:"source"`
}

// HashtagStat is the frequency of one hashtag within a batch.
type HashtagStat struct {
	Hashtag    string  `json:"hashtags" yaml:"hashtags"`
	Count      int     `json:"count" yaml:"count"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// MentionStat is the frequency of one mention within a batch.
type MentionStat struct {
	Mention    string  `json:"user_mention" yaml:"user_mention"`
	Count      int     `json:"count" yaml:"count"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// Metadata accompanies every result. Cached and ExecutionTime are always present.
type Metadata struct {
	Query          string  `json:"query,omitempty" yaml:"query,omitempty"`
	Username       string  `json:"username,omitempty" yaml:"username,omitempty"`
	Limit          int     `json:"limit,omitempty" yaml:"limit,omitempty"`
	TotalResults   int     `json:"total_results,omitempty" yaml:"total_results,omitempty"`
	TotalTweets    int     `json:"total_tweets,omitempty" yaml:"total_tweets,omitempty"`
	AnalysisPeriod string  `json:"analysis_period,omitempty" yaml:"analysis_period,omitempty"`
	ExecutionTime  float64 `json:"execution_time" yaml:"execution_time"`
	Cached         bool    `json:"cached" yaml:"cached"`
}

// UsersResult is returned by search, following and followers.
type UsersResult struct {
	Users    []UserRecord `json:"users" yaml:"users"`
	Metadata Metadata     `json:"metadata" yaml:"metadata"`
}

// MarkCached flags the result as served from cache.
func (r *UsersResult) MarkCached() {
	r.Metadata.Cached = true
}

// TimelineResult is returned by timeline. Hashtags and Mentions are left
// out when the caller did not ask for analysis.
type TimelineResult struct {
	Timelines []TweetRecord `json:"timelines" yaml:"timelines"`
	Hashtags  []HashtagStat `json:"hashtags,omitempty" yaml:"hashtags,omitempty"`
	Mentions  []MentionStat `json:"mentions,omitempty" yaml:"mentions,omitempty"`
	Metadata  Metadata      `json:"metadata" yaml:"metadata"`
}

// MarkCached flags the result as served from cache.
func (r *TimelineResult) MarkCached() {
	r.Metadata.Cached = true
}

// LoginResult is returned by a completed login.
type LoginResult struct {
	Status         string `json:"status" yaml:"status"`
	Message        string `json:"message" yaml:"message"`
	CredentialName string `json:"credential_name,omitempty" yaml:"credential_name,omitempty"`
	Cookies        int    `json:"cookies" yaml:"cookies"`
	Confirmed      bool   `json:"confirmed" yaml:"confirmed"`
}

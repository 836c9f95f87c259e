// Package extract maps captured GraphQL payloads onto typed records.
//
// Payloads are decoded once into a per-operation envelope. Entries keep their
// item content raw so each record decodes on its own: a malformed record is
// dropped without affecting the rest of the batch. Optional fields whose JSON
// type changed read as their zero value; only a missing identifier drops a
// record.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/justmadeid/social-services/internal/models"
)

const (
	instructionAddEntries = "TimelineAddEntries"

	// platformTimeLayout is how the platform formats created_at.
	platformTimeLayout = "Mon Jan 02 15:04:05 -0700 2006"
	isoLayout          = "2006-01-02T15:04:05-07:00"
)

var (
	hashtagRe = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
	mentionRe = regexp.MustCompile(`@([\p{L}\p{N}_]+)`)
)

// Parser extracts records from captured payloads.
type Parser struct {
	logger *slog.Logger
}

// New creates a parser. Skipped records are logged at debug level.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger.With("component", "extract")}
}

// decode unmarshals data into v. Fields whose JSON type does not match keep
// their zero value; encoding/json fills every other field before reporting
// an UnmarshalTypeError, so that error is dropped.
func decode(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return nil
	}
	return err
}

// SearchUsers extracts users from a SearchTimeline payload. limit <= 0 keeps all.
func (p *Parser) SearchUsers(payload []byte, limit int) ([]models.UserRecord, error) {
	var env searchEnvelope
	if err := decode(payload, &env); err != nil {
		return nil, fmt.Errorf("unmarshal search timeline: %w", err)
	}

	instructions := env.Data.SearchByRawQuery.SearchTimeline.Timeline.Instructions
	entries := addEntries(instructions)
	if entries == nil && len(instructions) > 1 {
		entries = instructions[1].Entries
	}
	return p.users(DropCursors(entries), limit), nil
}

// FollowGraph extracts users from a Following or Followers payload.
func (p *Parser) FollowGraph(payload []byte, limit int) ([]models.UserRecord, error) {
	var env userTimelineEnvelope
	if err := decode(payload, &env); err != nil {
		return nil, fmt.Errorf("unmarshal user timeline: %w", err)
	}
	return p.users(DropCursors(addEntries(env.instructions())), limit), nil
}

// Tweets extracts tweets from one UserTweets payload. username builds the
// permalink.
func (p *Parser) Tweets(payload []byte, username string) ([]models.TweetRecord, error) {
	var env userTimelineEnvelope
	if err := decode(payload, &env); err != nil {
		return nil, fmt.Errorf("unmarshal user tweets: %w", err)
	}

	var out []models.TweetRecord
	for _, e := range DropCursors(addEntries(env.instructions())) {
		if !isTweetEntry(e.EntryID) {
			continue
		}
		rec, err := tweetRecord(e, username)
		if err != nil {
			p.logger.Debug("skipping tweet entry", "entry_id", e.EntryID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Timeline merges the tweets of every payload, keeping the first occurrence
// of each tweet id. Undecodable payloads are skipped.
func (p *Parser) Timeline(payloads [][]byte, username string) []models.TweetRecord {
	seen := make(map[string]bool)
	var out []models.TweetRecord
	for i, payload := range payloads {
		tweets, err := p.Tweets(payload, username)
		if err != nil {
			p.logger.Debug("skipping timeline payload", "index", i, "error", err)
			continue
		}
		for _, t := range tweets {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			out = append(out, t)
		}
	}
	return out
}

// DropCursors removes the two trailing pagination entries when more than two
// entries are present.
func DropCursors[T any](entries []T) []T {
	if len(entries) > 2 {
		return entries[:len(entries)-2]
	}
	return entries
}

func addEntries(instructions []instruction) []entry {
	for _, ins := range instructions {
		if ins.Type == instructionAddEntries {
			return ins.Entries
		}
	}
	return nil
}

func isTweetEntry(entryID string) bool {
	for _, part := range strings.Split(entryID, "-") {
		if strings.Contains(part, "tweet") {
			return true
		}
	}
	return false
}

func (p *Parser) users(entries []entry, limit int) []models.UserRecord {
	out := make([]models.UserRecord, 0, len(entries))
	for _, e := range entries {
		if limit > 0 && len(out) >= limit {
			break
		}
		rec, err := userRecord(e)
		if err != nil {
			p.logger.Debug("skipping user entry", "entry_id", e.EntryID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out
}

func userRecord(e entry) (models.UserRecord, error) {
	if len(e.Content.ItemContent) == 0 {
		return models.UserRecord{}, fmt.Errorf("entry has no item content")
	}
	var item userItem
	if err := decode(e.Content.ItemContent, &item); err != nil {
		return models.UserRecord{}, err
	}
	u := item.UserResults.Result
	if u == nil || u.RestID == "" {
		return models.UserRecord{}, fmt.Errorf("user has no rest_id")
	}

	return models.UserRecord{
		UserID:     string(u.RestID),
		Name:       firstNonEmpty(u.Core.Name, u.Legacy.Name),
		ScreenName: firstNonEmpty(u.Core.ScreenName, u.Legacy.ScreenName),
		Bio:        u.Legacy.Description,
		Location:   firstNonEmpty(u.Location.Location, u.Legacy.Location),
		Followers:  int(u.Legacy.FollowersCount),
		Following:  int(u.Legacy.FriendsCount),
		Tweets:     int(u.Legacy.StatusesCount),
		Favorites:  int(u.Legacy.FavouritesCount),
		Private:    u.Legacy.Protected || u.Privacy.Protected,
		Verified:   u.IsBlueVerified || u.Legacy.Verified,
		Avatar:     firstNonEmpty(u.Avatar.ImageURL, u.Legacy.ProfileImageURL),
		URL:        u.Legacy.URL,
		Created:    firstNonEmpty(u.Core.CreatedAt, u.Legacy.CreatedAt),
	}, nil
}

func tweetRecord(e entry, username string) (models.TweetRecord, error) {
	if len(e.Content.ItemContent) == 0 {
		return models.TweetRecord{}, fmt.Errorf("entry has no item content")
	}
	var item tweetItem
	if err := decode(e.Content.ItemContent, &item); err != nil {
		return models.TweetRecord{}, err
	}
	t := item.TweetResults.Result.unwrap()
	if t == nil || t.Legacy == nil || t.Legacy.IDStr == "" {
		return models.TweetRecord{}, fmt.Errorf("tweet has no id_str")
	}
	legacy := t.Legacy

	var author userResult
	if t.Core.UserResults.Result != nil {
		author = *t.Core.UserResults.Result
	}

	rec := models.TweetRecord{
		ID:         string(legacy.IDStr),
		UserID:     string(legacy.UserIDStr),
		Date:       ParseTimestamp(legacy.CreatedAt),
		Text:       legacy.FullText,
		ScreenName: firstNonEmpty(author.Core.ScreenName, author.Legacy.ScreenName),
		Name:       firstNonEmpty(author.Core.Name, author.Legacy.Name),
		Retweets:   int(legacy.RetweetCount),
		Replies:    int(legacy.ReplyCount),
		MediaURL:   primaryMedia(legacy.Entities, legacy.ExtendedEntities),
		Likes:      int(legacy.FavoriteCount),
		Link:       fmt.Sprintf("https://twitter.com/%s/status/%s", username, string(legacy.IDStr)),
		Views:      int(t.Views.Count),
		Quotes:     int(legacy.QuoteCount),
		Hashtags:   Hashtags(legacy.FullText),
		Mentions:   Mentions(legacy.FullText),
		Source:     t.Source,
	}
	rec.Engagement = Engagement(rec.Views, rec.Likes, rec.Retweets, rec.Replies, rec.Quotes, int(author.Legacy.FollowersCount))
	return rec, nil
}

// ParseTimestamp converts the platform's created_at into ISO-8601. Unparseable
// input is returned unchanged.
func ParseTimestamp(raw string) string {
	if raw == "" {
		return ""
	}
	t, err := time.Parse(platformTimeLayout, raw)
	if err != nil {
		return raw
	}
	return t.Format(isoLayout)
}

// Hashtags returns the #tokens of text in order, repeats included.
func Hashtags(text string) []string {
	return tokens(hashtagRe, text)
}

// Mentions returns the @tokens of text in order, repeats included.
func Mentions(text string) []string {
	return tokens(mentionRe, text)
}

func tokens(re *regexp.Regexp, text string) []string {
	out := []string{}
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

// Engagement is total interactions as a percentage of the author's followers.
func Engagement(views, likes, retweets, replies, quotes, followers int) float64 {
	if followers < 1 {
		followers = 1
	}
	return float64(views+likes+retweets+replies+quotes) / float64(followers) * 100
}

// primaryMedia returns the first media URL: a video's first variant, else a
// photo, else "". The first entity list with media wins.
func primaryMedia(lists ...entities) string {
	for _, l := range lists {
		if len(l.Media) == 0 {
			continue
		}
		m := l.Media[0]
		switch m.Type {
		case "video":
			if len(m.VideoInfo.Variants) > 0 {
				return m.VideoInfo.Variants[0].URL
			}
			return ""
		case "photo":
			return m.MediaURLHTTPS
		}
		return ""
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

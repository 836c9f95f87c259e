package extract

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Intermediate representation of the platform's GraphQL envelopes. Only the
// fields the records need are declared; everything else is ignored.

type timeline struct {
	Instructions []instruction `json:"instructions"`
}

type instruction struct {
	Type    string  `json:"type"`
	Entries []entry `json:"entries"`
}

type entry struct {
	EntryID string `json:"entryId"`
	Content struct {
		EntryType   string          `json:"entryType"`
		ItemContent json.RawMessage `json:"itemContent"`
	} `json:"content"`
}

type searchEnvelope struct {
	Data struct {
		SearchByRawQuery struct {
			SearchTimeline struct {
				Timeline timeline `json:"timeline"`
			} `json:"search_timeline"`
		} `json:"search_by_raw_query"`
	} `json:"data"`
}

type userTimelineEnvelope struct {
	Data struct {
		User struct {
			Result struct {
				Timeline struct {
					Timeline timeline `json:"timeline"`
				} `json:"timeline"`
				TimelineV2 struct {
					Timeline timeline `json:"timeline"`
				} `json:"timeline_v2"`
			} `json:"result"`
		} `json:"user"`
	} `json:"data"`
}

func (e userTimelineEnvelope) instructions() []instruction {
	r := e.Data.User.Result
	if len(r.Timeline.Timeline.Instructions) > 0 {
		return r.Timeline.Timeline.Instructions
	}
	return r.TimelineV2.Timeline.Instructions
}

type userItem struct {
	UserResults struct {
		Result *userResult `json:"result"`
	} `json:"user_results"`
}

type userResult struct {
	TypeName       string `json:"__typename"`
	RestID         id     `json:"rest_id"`
	IsBlueVerified bool   `json:"is_blue_verified"`
	Core           struct {
		Name       string `json:"name"`
		ScreenName string `json:"screen_name"`
		CreatedAt  string `json:"created_at"`
	} `json:"core"`
	Avatar struct {
		ImageURL string `json:"image_url"`
	} `json:"avatar"`
	Location struct {
		Location string `json:"location"`
	} `json:"location"`
	Privacy struct {
		Protected bool `json:"protected"`
	} `json:"privacy"`
	Legacy struct {
		Name            string `json:"name"`
		ScreenName      string `json:"screen_name"`
		Description     string `json:"description"`
		Location        string `json:"location"`
		URL             string `json:"url"`
		FollowersCount  count  `json:"followers_count"`
		FriendsCount    count  `json:"friends_count"`
		StatusesCount   count  `json:"statuses_count"`
		FavouritesCount count  `json:"favourites_count"`
		Protected       bool   `json:"protected"`
		Verified        bool   `json:"verified"`
		ProfileImageURL string `json:"profile_image_url_https"`
		CreatedAt       string `json:"created_at"`
	} `json:"legacy"`
}

type tweetItem struct {
	TweetResults struct {
		Result *tweetResult `json:"result"`
	} `json:"tweet_results"`
}

type tweetResult struct {
	TypeName string `json:"__typename"`
	RestID   string `json:"rest_id"`
	Source   string `json:"source"`
	// set when __typename is TweetWithVisibilityResults
	Tweet *tweetResult `json:"tweet"`
	Core  struct {
		UserResults struct {
			Result *userResult `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
	Views struct {
		Count count `json:"count"`
	} `json:"views"`
	Legacy *struct {
		IDStr            id       `json:"id_str"`
		UserIDStr        id       `json:"user_id_str"`
		FullText         string   `json:"full_text"`
		CreatedAt        string   `json:"created_at"`
		FavoriteCount    count    `json:"favorite_count"`
		RetweetCount     count    `json:"retweet_count"`
		ReplyCount       count    `json:"reply_count"`
		QuoteCount       count    `json:"quote_count"`
		Entities         entities `json:"entities"`
		ExtendedEntities entities `json:"extended_entities"`
	} `json:"legacy"`
}

func (t *tweetResult) unwrap() *tweetResult {
	if t != nil && t.Tweet != nil && t.TypeName == "TweetWithVisibilityResults" {
		return t.Tweet
	}
	return t
}

type entities struct {
	Media []mediaEntity `json:"media"`
}

type mediaEntity struct {
	Type          string `json:"type"`
	MediaURLHTTPS string `json:"media_url_https"`
	VideoInfo     struct {
		Variants []struct {
			URL string `json:"url"`
		} `json:"variants"`
	} `json:"video_info"`
}

// count decodes a JSON number or numeric string. Anything else reads as 0.
type count int

func (c *count) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*c = count(n)
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*c = count(f)
		return nil
	}
	*c = 0
	return nil
}

// id decodes an identifier sent as a string or a bare number.
type id string

func (i *id) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*i = id(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*i = id(n.String())
		return nil
	}
	*i = ""
	return nil
}

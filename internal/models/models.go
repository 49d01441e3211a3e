package models

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies a destination social network.
type Platform string

const (
	PlatformX         Platform = "x"
	PlatformBluesky   Platform = "bluesky"
	PlatformThreads   Platform = "threads"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformPinterest Platform = "pinterest"
)

// AllPlatforms lists every supported platform in the order the runner walks them.
var AllPlatforms = []Platform{
	PlatformX,
	PlatformBluesky,
	PlatformThreads,
	PlatformInstagram,
	PlatformFacebook,
	PlatformPinterest,
}

// ParsePlatform normalizes s and returns the matching Platform. "twitter" is accepted as an alias for x.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if p == "twitter" {
		p = PlatformX
	}
	for _, known := range AllPlatforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

func (p Platform) String() string { return string(p) }

type QueueStatus string

const (
	QueueStatusQueued     QueueStatus = "queued"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusPosted     QueueStatus = "posted"
	QueueStatusFailed     QueueStatus = "failed"
)

// CanTransition reports whether a queue entry may move from s to next.
// Only queued→processing and processing→{posted,failed} are legal.
func (s QueueStatus) CanTransition(next QueueStatus) bool {
	switch s {
	case QueueStatusQueued:
		return next == QueueStatusProcessing
	case QueueStatusProcessing:
		return next == QueueStatusPosted || next == QueueStatusFailed
	default:
		return false
	}
}

// QueueItem is one (platform, quote) pairing awaiting publication.
type QueueItem struct {
	ID           int64       `json:"id"`
	Platform     Platform    `json:"platform"`
	QuoteID      int64       `json:"quoteId"`
	Status       QueueStatus `json:"status"`
	ScheduledFor *time.Time  `json:"scheduledFor,omitempty"`
	Position     int         `json:"position"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

const QuoteStatusApproved = "approved"

// Quote is the read-only projection of a quote joined with its author and reference names.
type Quote struct {
	ID            int64  `json:"id"`
	Text          string `json:"text"`
	Status        string `json:"status"`
	AuthorName    string `json:"authorName,omitempty"`
	ReferenceName string `json:"referenceName,omitempty"`
}

func (q Quote) Approved() bool {
	return strings.EqualFold(strings.TrimSpace(q.Status), QuoteStatusApproved)
}

// ClaimedItem is a queue entry this run owns, with its quote when one was found.
type ClaimedItem struct {
	Item  QueueItem
	Quote *Quote
}

type SocialPostStatus string

const (
	SocialPostSuccess SocialPostStatus = "success"
	SocialPostFailed  SocialPostStatus = "failed"
)

// SocialPost records one publish attempt. IdempotencyKey is unique.
type SocialPost struct {
	ID             string           `json:"id"`
	QuoteID        int64            `json:"quoteId"`
	QueueID        int64            `json:"queueId"`
	Platform       Platform         `json:"platform"`
	Status         SocialPostStatus `json:"status"`
	PostText       string           `json:"postText"`
	PostURL        string           `json:"postUrl"`
	ExternalPostID *string          `json:"externalPostId,omitempty"`
	IdempotencyKey string           `json:"idempotencyKey"`
	ErrorMessage   *string          `json:"errorMessage,omitempty"`
	PostedAt       time.Time        `json:"postedAt"`
}

// IdempotencyKey returns the unique key for the outcome of a queue entry on a platform.
func IdempotencyKey(p Platform, queueID int64) string {
	return fmt.Sprintf("%s:%d", p, queueID)
}

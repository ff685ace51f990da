package domain

import "time"

// Source is a configured origin fetched by one connector type.
type Source struct {
	ID                   string
	Name                 string
	Type                 string
	Config               map[string]string
	Enabled              bool
	FetchIntervalMinutes int
	LastFetchAt          *time.Time
	LastError            *string
}

// FetchInterval converts the configured minutes to a duration.
func (s Source) FetchInterval() time.Duration {
	return time.Duration(s.FetchIntervalMinutes) * time.Minute
}

// IsDue reports whether the source should be fetched at now. A source that was
// never fetched is always due.
func (s Source) IsDue(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.LastFetchAt == nil {
		return true
	}
	return now.Sub(*s.LastFetchAt) > s.FetchInterval()
}

// RawItem is a connector's normalized output before persistence.
type RawItem struct {
	ExternalID  string
	Title       string
	Content     string
	URL         string
	Author      string
	PublishedAt time.Time
	Metadata    map[string]any
}

// ABOUTME: Centralized configuration defaults for skim
// ABOUTME: Contains magic numbers and hardcoded values for fetching, display and files

package config

import "time"

// HTTP settings
const (
	DefaultHTTPTimeout = 30 * time.Second
	DefaultUserAgent   = "skim/1.0 (RSS reader)"
	MaxFeedBytes       = 10 * 1024 * 1024
)

// Display settings
const (
	DefaultListLimit = 20
	SeparatorWidth   = 60
	DateFormatShort  = "02 Jan 06 15:04 MST"
	DateFormatLong   = "Mon, 02 Jan 2006 15:04 MST"
)

// File settings
const (
	DefaultURLFileName = "urls"
	DefaultLogFileName = "skim.log"
	DefaultDirPerms    = 0700
)

// MCP settings
const (
	DefaultSearchLimit = 20
)

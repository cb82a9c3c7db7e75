package bar

import "time"

// AssetPairAndTimestamp identifies a single historical-bar lookup: the pair
// being converted, the exchange it should be sourced from, and the instant
// in time the conversion rate is needed for.
type AssetPairAndTimestamp struct {
	Timestamp time.Time
	FromAsset string
	ToAsset   string
	Exchange  string
}

// FloorToMinute truncates Timestamp down to the start of its minute, which is
// the granularity the bar and bundle cache keys are indexed at.
func (k AssetPairAndTimestamp) FloorToMinute() AssetPairAndTimestamp {
	k.Timestamp = k.Timestamp.Truncate(time.Minute)
	return k
}

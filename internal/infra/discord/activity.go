package discord

// Activity is the rich presence shown on the user's profile.
type Activity struct {
	State      string      `json:"state,omitempty"`
	Details    string      `json:"details,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
	Type       int         `json:"type,omitempty"`
}

// Timestamps are unix seconds; Discord derives elapsed or remaining time.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

// Assets are the images of an activity. Images are asset keys or public URLs.
type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// ActivityListening renders the activity as "Listening to".
const ActivityListening = 2

// truncate limits a field to Discord's 128 byte cap without splitting runes.
func truncate(s string) string {
	const limit = 128
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}

func (a *Activity) sanitized() *Activity {
	if a == nil {
		return nil
	}
	c := *a
	c.State = truncate(c.State)
	c.Details = truncate(c.Details)
	if a.Assets != nil {
		as := *a.Assets
		as.LargeText = truncate(as.LargeText)
		as.SmallText = truncate(as.SmallText)
		c.Assets = &as
	}
	return &c
}

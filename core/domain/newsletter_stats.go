package domain

// CategoryCount is one entry of the top-categories ranking.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Stats is the aggregated reporting summary for one user. Zero values mean
// genuinely zero data; aggregation failures are surfaced as errors instead
// of being collapsed into this shape.
type Stats struct {
	TotalNewsletters    int             `json:"total_newsletters"`
	ActiveSubscriptions int             `json:"active_subscriptions"`
	TotalEmails         int             `json:"total_emails"`
	EmailsLast7Days     int             `json:"emails_last_7_days"`
	EmailsLast30Days    int             `json:"emails_last_30_days"`
	TopCategories       []CategoryCount `json:"top_categories"`
	AvgRelevance        float64         `json:"avg_relevance"`
	OpenRate            float64         `json:"open_rate"`
	ClickRate           float64         `json:"click_rate"`
}

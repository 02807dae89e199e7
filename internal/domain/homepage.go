package domain

// ============================================================
// Homepage & content
// ============================================================

// DefaultHotTag labels hot properties without an explicit tag.
const DefaultHotTag = "热门"

// Topic is a published community article shown on the homepage.
type Topic struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Likes      int    `json:"likes"`
	CoverImage string `json:"cover_image"`
}

// HomepageBanner is the homepage projection of a Banner.
type HomepageBanner struct {
	Image string  `json:"image"`
	Title string  `json:"title"`
	Link  *string `json:"link"`
}

// HotProperty is the homepage projection of a Property.
type HotProperty struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Location string  `json:"location"`
	Price    float64 `json:"price"`
	Image    string  `json:"image"`
	Tag      string  `json:"tag"`
}

// HomepageTopic is the homepage projection of a Topic.
type HomepageTopic struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Likes  int    `json:"likes"`
	Image  string `json:"image"`
}

// Homepage aggregates every homepage section.
type Homepage struct {
	Banners       []HomepageBanner `json:"bannerList"`
	HotProperties []HotProperty    `json:"hotProperties"`
	Topics        []HomepageTopic  `json:"topicList"`
}

// GuideType selects a rental guide section.
type GuideType string

const (
	GuideProcess GuideType = "process"
	GuideTips    GuideType = "tips"
	GuideFAQ     GuideType = "faq"
)

// Valid reports whether t is a known guide section.
func (t GuideType) Valid() bool {
	switch t {
	case GuideProcess, GuideTips, GuideFAQ:
		return true
	}
	return false
}

// RentalGuide is a row of rental_guides. Columns beyond the common ones pass through.
type RentalGuide struct {
	ID      int       `json:"id"`
	Type    GuideType `json:"type"`
	Title   string    `json:"title,omitempty"`
	Content string    `json:"content,omitempty"`
	Step    *int      `json:"step,omitempty"`
	Icon    string    `json:"icon,omitempty"`
}

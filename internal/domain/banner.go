package domain

import "time"

// Banner is a homepage carousel slide.
type Banner struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Image     string     `json:"image"`
	Link      *string    `json:"link"`
	Order     int        `json:"order"`
	CreatedBy string     `json:"created_by,omitempty"`
	UpdatedBy string     `json:"updated_by,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// BannerInput is the body for banner create and update. ImageURL wins over Image.
type BannerInput struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Image    string  `json:"image"`
	ImageURL string  `json:"image_url"`
	Link     *string `json:"link"`
}

// ResolvedImage returns the image to persist.
func (in *BannerInput) ResolvedImage() string {
	if in.ImageURL != "" {
		return in.ImageURL
	}
	return in.Image
}

// BannerUpdateResult reports whether an update changed anything.
type BannerUpdateResult struct {
	Banner  *Banner
	Changed bool
}

// ReorderRequest is the body for POST /api/banners/reorder.
type ReorderRequest struct {
	Order []string `json:"order"`
}

// ReorderError describes one banner that could not be moved.
type ReorderError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

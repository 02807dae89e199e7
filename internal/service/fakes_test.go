package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/observability"
	"github.com/boddenberg/rental-api-go/internal/port"

	"go.uber.org/zap"
)

var (
	nop     = zap.NewNop()
	errBoom = errors.New("boom")
)

func newMetrics() *observability.Metrics { return observability.NewMetrics() }

func ptr[T any](v T) *T { return &v }

// --- In-memory store ---

// memStore implements every data port over maps. failOn injects an error
// into the named method.
type memStore struct {
	mu  sync.Mutex
	seq int

	users     map[string]*domain.User
	userOrder []string
	refresh   map[string]*domain.AuthRefreshToken
	// staleRefreshReads makes GetRefreshToken report tokens as live, like a
	// read that raced a concurrent rotation.
	staleRefreshReads bool
	properties        map[string]*domain.Property
	appointments      map[string]*domain.Appointment
	inquiries         map[string]*domain.Inquiry
	banners           map[string]*domain.Banner
	topics            []domain.Topic
	guides            []domain.RentalGuide
	rentals           map[string]*domain.Rental
	bills             []domain.Bill
	maintenance       []domain.MaintenanceRequest
	announcements     []domain.Announcement

	failOn        map[string]error
	failBannerIDs map[string]bool
	calls         map[string]int

	// viewGate blocks IncrementViewCount until closed.
	viewGate chan struct{}

	lastUserUpdate        map[string]any
	lastPropertyFields    map[string]any
	lastAppointmentFilter domain.AppointmentFilter
	lastAppointmentUpdate map[string]any
	lastInquiryFilter     domain.InquiryFilter
	lastNewInquiry        *domain.NewInquiry
	lastAnnouncementsFor  string
}

func newMemStore() *memStore {
	return &memStore{
		users:         map[string]*domain.User{},
		refresh:       map[string]*domain.AuthRefreshToken{},
		properties:    map[string]*domain.Property{},
		appointments:  map[string]*domain.Appointment{},
		inquiries:     map[string]*domain.Inquiry{},
		banners:       map[string]*domain.Banner{},
		rentals:       map[string]*domain.Rental{},
		failOn:        map[string]error{},
		failBannerIDs: map[string]bool{},
		calls:         map[string]int{},
	}
}

// enter locks the store, counts the call and returns the injected error.
// Callers must unlock.
func (s *memStore) enter(op string) error {
	s.mu.Lock()
	s.calls[op]++
	return s.failOn[op]
}

func (s *memStore) fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[op] = err
}

func (s *memStore) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// --- seeding helpers ---

func (s *memStore) addUser(u domain.User) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
	s.userOrder = append(s.userOrder, u.ID)
	return &u
}

func (s *memStore) user(id string) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp
	}
	return nil
}

func (s *memStore) addProperty(p domain.Property) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Images == nil {
		p.Images = []string{}
	}
	s.properties[p.ID] = &p
}

func (s *memStore) property(id string) *domain.Property {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.properties[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

func (s *memStore) addAppointment(a domain.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments[a.ID] = &a
}

func (s *memStore) addInquiry(i domain.Inquiry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inquiries[i.ID] = &i
}

func (s *memStore) addBanner(b domain.Banner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banners[b.ID] = &b
}

func (s *memStore) banner(id string) *domain.Banner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.banners[id]; ok {
		cp := *b
		return &cp
	}
	return nil
}

// --- UserStore ---

func (s *memStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	err := s.enter("GetUserByID")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) findUser(match func(*domain.User) bool) *domain.User {
	for _, id := range s.userOrder {
		if u := s.users[id]; match(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (s *memStore) GetUserByUsername(_ context.Context, username string, role domain.Role) (*domain.User, error) {
	err := s.enter("GetUserByUsername")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.findUser(func(u *domain.User) bool {
		return u.Username == username && (role == "" || u.Role == role)
	}), nil
}

func (s *memStore) GetUserByPhone(_ context.Context, phone string) (*domain.User, error) {
	err := s.enter("GetUserByPhone")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.findUser(func(u *domain.User) bool { return u.PhoneNumber == phone }), nil
}

func (s *memStore) GetUserByOpenID(_ context.Context, openID string) (*domain.User, error) {
	err := s.enter("GetUserByOpenID")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.findUser(func(u *domain.User) bool { return u.OpenID == openID }), nil
}

func (s *memStore) FirstUserID(_ context.Context) (string, error) {
	err := s.enter("FirstUserID")
	defer s.mu.Unlock()
	if err != nil || len(s.userOrder) == 0 {
		return "", err
	}
	return s.userOrder[0], nil
}

func (s *memStore) CreateUser(_ context.Context, n *domain.NewUser) (*domain.User, error) {
	err := s.enter("CreateUser")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	u := &domain.User{
		ID:           s.nextID("user"),
		Username:     n.Username,
		PasswordHash: n.PasswordHash,
		PhoneNumber:  n.PhoneNumber,
		Role:         n.Role,
		OpenID:       n.OpenID,
		Nickname:     n.Nickname,
		AvatarURL:    n.AvatarURL,
		CreatedAt:    &now,
	}
	s.users[u.ID] = u
	s.userOrder = append(s.userOrder, u.ID)
	cp := *u
	return &cp, nil
}

func (s *memStore) UpdateUser(_ context.Context, id string, updates map[string]any) error {
	err := s.enter("UpdateUser")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}
	s.lastUserUpdate = updates
	u, ok := s.users[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "user", ID: id}
	}
	if h, ok := updates["password_hash"].(string); ok {
		u.PasswordHash = h
	}
	if v, ok := updates["password"]; ok && v == nil {
		u.LegacyPassword = ""
	}
	return nil
}

func (s *memStore) StoreRefreshToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	err := s.enter("StoreRefreshToken")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}
	s.refresh[tokenHash] = &domain.AuthRefreshToken{
		ID:        s.nextID("rt"),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	}
	return nil
}

func (s *memStore) GetRefreshToken(_ context.Context, tokenHash string) (*domain.AuthRefreshToken, error) {
	err := s.enter("GetRefreshToken")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if t, ok := s.refresh[tokenHash]; ok {
		cp := *t
		if s.staleRefreshReads {
			cp.Revoked = false
		}
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) RevokeRefreshToken(_ context.Context, tokenHash string) (bool, error) {
	err := s.enter("RevokeRefreshToken")
	defer s.mu.Unlock()
	if err != nil {
		return false, err
	}
	t, ok := s.refresh[tokenHash]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

func (s *memStore) RevokeAllRefreshTokens(_ context.Context, userID string) error {
	err := s.enter("RevokeAllRefreshTokens")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}
	for _, t := range s.refresh {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (s *memStore) activeRefreshTokens(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.refresh {
		if t.UserID == userID && !t.Revoked {
			n++
		}
	}
	return n
}

func (s *memStore) Ping(_ context.Context) error {
	err := s.enter("Ping")
	defer s.mu.Unlock()
	return err
}

// --- PropertyStore ---

func applyPropertyFields(p *domain.Property, fields map[string]any) {
	for k, v := range fields {
		switch k {
		case "title":
			p.Title = v.(string)
		case "description":
			p.Description = v.(string)
		case "district":
			p.District = v.(string)
		case "price_per_month":
			p.PricePerMonth = v.(float64)
		case "landlord_id":
			p.LandlordID = v.(string)
		case "status":
			p.Status = v.(domain.PropertyStatus)
		case "is_published":
			p.IsPublished = v.(bool)
		case "images":
			p.Images = v.([]string)
		case "amenities":
			p.Amenities = v.([]string)
		}
	}
}

func (s *memStore) sortedProperties(keep func(*domain.Property) bool) []domain.Property {
	out := []domain.Property{}
	for _, p := range s.properties {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) ListProperties(_ context.Context, f domain.PropertyFilter) (*domain.PropertyList, error) {
	err := s.enter("ListProperties")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	rows := s.sortedProperties(func(p *domain.Property) bool {
		return (f.LandlordID == "" || p.LandlordID == f.LandlordID) &&
			(f.District == "" || p.District == f.District)
	})
	total := len(rows)
	from := min((f.Page-1)*f.Limit, total)
	to := min(from+f.Limit, total)
	return &domain.PropertyList{Total: total, Properties: rows[from:to]}, nil
}

func (s *memStore) ListPropertiesByLandlord(_ context.Context, landlordID string) ([]domain.Property, error) {
	err := s.enter("ListPropertiesByLandlord")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.sortedProperties(func(p *domain.Property) bool { return p.LandlordID == landlordID }), nil
}

func (s *memStore) ListHotProperties(_ context.Context, limit int) ([]domain.Property, error) {
	err := s.enter("ListHotProperties")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	rows := s.sortedProperties(func(p *domain.Property) bool {
		return p.IsPublished && p.Status == domain.PropertyAvailable
	})
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ViewCount > rows[j].ViewCount })
	return rows[:min(limit, len(rows))], nil
}

func (s *memStore) GetProperty(_ context.Context, id string) (*domain.Property, error) {
	err := s.enter("GetProperty")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	p, ok := s.properties[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "property", ID: id}
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) CreateProperty(_ context.Context, fields map[string]any) (*domain.Property, error) {
	err := s.enter("CreateProperty")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.lastPropertyFields = fields
	now := time.Now()
	p := &domain.Property{ID: s.nextID("prop"), CreatedAt: &now}
	applyPropertyFields(p, fields)
	s.properties[p.ID] = p
	cp := *p
	return &cp, nil
}

func (s *memStore) UpdateProperty(_ context.Context, id string, fields map[string]any) (*domain.Property, error) {
	err := s.enter("UpdateProperty")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	p, ok := s.properties[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "property", ID: id}
	}
	s.lastPropertyFields = fields
	applyPropertyFields(p, fields)
	cp := *p
	return &cp, nil
}

func (s *memStore) DeleteProperty(_ context.Context, id string) error {
	err := s.enter("DeleteProperty")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}
	delete(s.properties, id)
	return nil
}

func (s *memStore) IncrementViewCount(_ context.Context, id string) error {
	s.mu.Lock()
	gate := s.viewGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	err := s.enter("IncrementViewCount")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}
	if p, ok := s.properties[id]; ok {
		p.ViewCount++
	}
	return nil
}

// --- AppointmentStore ---

func (s *memStore) sortedAppointments(keep func(*domain.Appointment) bool) []domain.Appointment {
	out := []domain.Appointment{}
	for _, a := range s.appointments {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) CreateAppointment(_ context.Context, a *domain.Appointment) (*domain.Appointment, error) {
	err := s.enter("CreateAppointment")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	cp := *a
	cp.ID = s.nextID("appt")
	cp.CreatedAt = &now
	s.appointments[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *memStore) ListAppointments(_ context.Context, f domain.AppointmentFilter) ([]domain.Appointment, error) {
	err := s.enter("ListAppointments")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.lastAppointmentFilter = f
	return s.sortedAppointments(func(a *domain.Appointment) bool {
		return (f.TenantID == "" || a.TenantID == f.TenantID) &&
			(f.LandlordID == "" || a.LandlordID == f.LandlordID) &&
			(f.Status == "" || a.Status == f.Status)
	}), nil
}

func (s *memStore) ListAppointmentsByProperties(_ context.Context, propertyIDs []string) ([]domain.Appointment, error) {
	err := s.enter("ListAppointmentsByProperties")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.sortedAppointments(func(a *domain.Appointment) bool {
		return slices.Contains(propertyIDs, a.PropertyID)
	}), nil
}

func (s *memStore) GetAppointment(_ context.Context, id string) (*domain.Appointment, error) {
	err := s.enter("GetAppointment")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	a, ok := s.appointments[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "appointment", ID: id}
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) UpdateAppointment(_ context.Context, id string, fields map[string]any) (*domain.Appointment, error) {
	err := s.enter("UpdateAppointment")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	a, ok := s.appointments[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "appointment", ID: id}
	}
	s.lastAppointmentUpdate = fields
	if v, ok := fields["status"].(domain.AppointmentStatus); ok {
		a.Status = v
	}
	if v, ok := fields["landlord_notes"].(string); ok {
		a.LandlordNotes = v
	}
	if v, ok := fields["scheduled_time"].(string); ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, err
		}
		a.ScheduledTime = &t
	}
	cp := *a
	return &cp, nil
}

// --- InquiryStore ---

func (s *memStore) ListInquiries(_ context.Context, f domain.InquiryFilter) ([]domain.Inquiry, error) {
	err := s.enter("ListInquiries")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.lastInquiryFilter = f
	out := []domain.Inquiry{}
	if f.ByProperties && len(f.PropertyIDs) == 0 {
		return out, nil
	}
	for _, inq := range s.inquiries {
		if f.TenantID != "" && inq.TenantID != f.TenantID {
			continue
		}
		if f.ByProperties && !slices.Contains(f.PropertyIDs, inq.PropertyID) {
			continue
		}
		out = append(out, *inq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetInquiry(_ context.Context, id string) (*domain.Inquiry, error) {
	err := s.enter("GetInquiry")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	inq, ok := s.inquiries[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "inquiry", ID: id}
	}
	cp := *inq
	if p, ok := s.properties[inq.PropertyID]; ok {
		pc := *p
		cp.Property = &pc
	}
	return &cp, nil
}

func (s *memStore) CreateInquiry(_ context.Context, n *domain.NewInquiry) (*domain.Inquiry, error) {
	err := s.enter("CreateInquiry")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.lastNewInquiry = n
	now := time.Now()
	inq := &domain.Inquiry{
		ID:                  s.nextID("inq"),
		PropertyID:          n.PropertyID,
		TenantID:            n.TenantID,
		Question:            n.Question,
		Status:              n.Status,
		ConversationHistory: json.RawMessage(n.ConversationHistory),
		CreatedAt:           &now,
	}
	s.inquiries[inq.ID] = inq
	cp := *inq
	return &cp, nil
}

// --- BannerStore ---

func applyBannerFields(b *domain.Banner, fields map[string]any) {
	for k, v := range fields {
		switch k {
		case "title":
			b.Title = v.(string)
		case "image":
			b.Image = v.(string)
		case "link":
			b.Link = v.(*string)
		case "order":
			b.Order = v.(int)
		case "created_by":
			b.CreatedBy = v.(string)
		case "updated_by":
			b.UpdatedBy = v.(string)
		}
	}
}

func (s *memStore) ListBanners(_ context.Context, limit int) ([]domain.Banner, error) {
	err := s.enter("ListBanners")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := []domain.Banner{}
	for _, b := range s.banners {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out[:min(limit, len(out))], nil
}

func (s *memStore) GetBanner(_ context.Context, id string) (*domain.Banner, error) {
	err := s.enter("GetBanner")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	b, ok := s.banners[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "banner", ID: id}
	}
	cp := *b
	return &cp, nil
}

func (s *memStore) MaxBannerOrder(_ context.Context) (int, error) {
	err := s.enter("MaxBannerOrder")
	defer s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	maxOrder := 0
	for _, b := range s.banners {
		maxOrder = max(maxOrder, b.Order)
	}
	return maxOrder, nil
}

func (s *memStore) CreateBanner(_ context.Context, fields map[string]any) (*domain.Banner, error) {
	err := s.enter("CreateBanner")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	b := &domain.Banner{ID: s.nextID("banner")}
	applyBannerFields(b, fields)
	s.banners[b.ID] = b
	cp := *b
	return &cp, nil
}

func (s *memStore) UpdateBanner(_ context.Context, id string, fields map[string]any) error {
	err := s.enter("UpdateBanner")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}
	if s.failBannerIDs[id] {
		return fmt.Errorf("update banner %s: %w", id, errBoom)
	}
	b, ok := s.banners[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "banner", ID: id}
	}
	applyBannerFields(b, fields)
	return nil
}

func (s *memStore) DeleteBanner(_ context.Context, id string) error {
	err := s.enter("DeleteBanner")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}
	delete(s.banners, id)
	return nil
}

// --- ContentStore ---

func (s *memStore) ListTopics(_ context.Context, limit int) ([]domain.Topic, error) {
	err := s.enter("ListTopics")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.topics[:min(limit, len(s.topics))], nil
}

func (s *memStore) ListRentalGuides(_ context.Context, t domain.GuideType) ([]domain.RentalGuide, error) {
	err := s.enter("ListRentalGuides")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := []domain.RentalGuide{}
	for _, g := range s.guides {
		if g.Type == t {
			out = append(out, g)
		}
	}
	return out, nil
}

// --- TenantStore ---

func (s *memStore) GetActiveRental(_ context.Context, tenantID string) (*domain.Rental, error) {
	err := s.enter("GetActiveRental")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if r, ok := s.rentals[tenantID]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) ListBills(_ context.Context, tenantID string, limit int) ([]domain.Bill, error) {
	err := s.enter("ListBills")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var out []domain.Bill
	for _, b := range s.bills {
		if b.TenantID == tenantID && len(out) < limit {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) ListMaintenanceRequests(_ context.Context, tenantID string, limit int) ([]domain.MaintenanceRequest, error) {
	err := s.enter("ListMaintenanceRequests")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := []domain.MaintenanceRequest{}
	for _, m := range s.maintenance {
		if m.TenantID == tenantID && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) ListAnnouncements(_ context.Context, propertyID string, limit int) ([]domain.Announcement, error) {
	err := s.enter("ListAnnouncements")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.lastAnnouncementsFor = propertyID
	out := []domain.Announcement{}
	for _, a := range s.announcements {
		if a.PropertyID == propertyID && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- Object storage ---

type putCall struct {
	Bucket      string
	Key         string
	ContentType string
	Size        int
}

type memStorage struct {
	mu   sync.Mutex
	puts []putCall
	err  error
}

func (m *memStorage) PutObject(_ context.Context, bucket, key, contentType string, body []byte) (*domain.StoredObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.puts = append(m.puts, putCall{Bucket: bucket, Key: key, ContentType: contentType, Size: len(body)})
	return &domain.StoredObject{Bucket: bucket, Key: key, URL: m.PublicURL(bucket, key)}, nil
}

func (m *memStorage) DeleteObject(_ context.Context, _, _ string) error { return nil }

func (m *memStorage) PublicURL(bucket, key string) string {
	return "https://cdn.test/" + bucket + "/" + key
}

func (m *memStorage) Ping(_ context.Context, _ string) error { return m.err }

// --- Multipart uploads ---

// fakeUpload reports a fixed sequence of states. With block set it parks in
// running until cancelled.
type fakeUpload struct {
	req   port.MultipartRequest
	block bool
	err   error

	started   chan struct{}
	cancelled chan struct{}

	mu    sync.Mutex
	state domain.UploadState
}

func newFakeUpload() *fakeUpload {
	return &fakeUpload{
		started:   make(chan struct{}),
		cancelled: make(chan struct{}),
		state:     domain.UploadWaiting,
	}
}

func (u *fakeUpload) setState(state domain.UploadState, msg string) {
	u.mu.Lock()
	u.state = state
	u.mu.Unlock()
	u.req.OnStateChange(state, msg)
}

func (u *fakeUpload) Start(ctx context.Context) (*domain.StoredObject, error) {
	u.setState(domain.UploadInited, "")
	u.setState(domain.UploadRunning, "")
	close(u.started)

	if u.block {
		select {
		case <-u.cancelled:
			return nil, &domain.ErrUpload{State: domain.UploadCancelled, Message: "upload cancelled"}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if u.err != nil {
		u.setState(domain.UploadFailed, u.err.Error())
		return nil, u.err
	}

	half := u.req.Size / 2
	u.req.OnProgress(domain.UploadProgress{UploadedBytes: half, TotalBytes: u.req.Size})
	u.req.OnProgress(domain.UploadProgress{UploadedBytes: u.req.Size, TotalBytes: u.req.Size, Progress: 1})
	u.setState(domain.UploadCompleted, "")
	return &domain.StoredObject{
		Bucket: u.req.Bucket,
		Key:    u.req.Key,
		URL:    "https://cdn.test/" + u.req.Bucket + "/" + u.req.Key,
	}, nil
}

func (u *fakeUpload) Pause() bool  { return false }
func (u *fakeUpload) Resume() bool { return false }

func (u *fakeUpload) Cancel(_ context.Context) bool {
	u.mu.Lock()
	if u.state != domain.UploadRunning {
		u.mu.Unlock()
		return false
	}
	u.state = domain.UploadCancelled
	u.mu.Unlock()

	u.req.OnStateChange(domain.UploadCancelled, "")
	close(u.cancelled)
	return true
}

func (u *fakeUpload) State() domain.UploadState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *fakeUpload) UploadID() string { return "mpu-1" }

type fakeUploader struct {
	upload *fakeUpload
	err    error
}

func (f *fakeUploader) NewMultipartUpload(req port.MultipartRequest) (port.MultipartUpload, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.upload.req = req
	return f.upload, nil
}

// --- Upload sessions ---

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]domain.UploadSession
	updates  int
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[string]domain.UploadSession{}}
}

func (m *memSessions) CreateSession(_ context.Context, s *domain.UploadSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *memSessions) UpdateSession(_ context.Context, s *domain.UploadSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	m.sessions[s.ID] = *s
	return nil
}

func (m *memSessions) GetSession(_ context.Context, id string) (*domain.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "upload session", ID: id}
	}
	return &s, nil
}

// --- WeChat ---

type fakeWechat struct {
	openID string
	err    error
	codes  []string
}

func (f *fakeWechat) Code2Session(_ context.Context, code string) (*domain.WechatSession, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.WechatSession{OpenID: f.openID, SessionKey: "sk"}, nil
}

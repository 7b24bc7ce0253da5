package services

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Dosada05/tcg-tournaments/live"
	"github.com/Dosada05/tcg-tournaments/models"
	"github.com/Dosada05/tcg-tournaments/payments"
	"github.com/Dosada05/tcg-tournaments/repositories"
	"github.com/Dosada05/tcg-tournaments/storage"
	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore - общая in-memory база для фейковых репозиториев.
type memStore struct {
	mu            sync.Mutex
	nextID        int
	users         map[int]models.User
	tournaments   map[int]models.Tournament
	registrations map[int]models.Registration
	matches       map[int]models.Match
	tables        map[int]models.GameTable
	// countDelay замедляет CountActiveByTournament, чтобы расширить окно гонки.
	countDelay time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[int]models.User),
		tournaments:   make(map[int]models.Tournament),
		registrations: make(map[int]models.Registration),
		matches:       make(map[int]models.Match),
		tables:        make(map[int]models.GameTable),
	}
}

func (s *memStore) id() int {
	s.nextID++
	return s.nextID
}

func (s *memStore) addUser(name string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := models.User{ID: s.id(), Username: name, Email: strings.ToLower(name) + "@example.com", Role: models.RolePlayer, CreatedAt: time.Now()}
	s.users[u.ID] = u
	return &u
}

func (s *memStore) addTournament(maxPlayers int, status models.TournamentStatus) *models.Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := models.Tournament{
		ID:          s.id(),
		Name:        "Sunday Locals",
		ScheduledAt: time.Date(2026, 11, 1, 14, 0, 0, 0, time.UTC),
		EntryFee:    decimal.RequireFromString("25.00"),
		MaxPlayers:  maxPlayers,
		Status:      status,
		CreatedAt:   time.Now(),
	}
	s.tournaments[t.ID] = t
	return &t
}

func (s *memStore) addTable(number int) *models.GameTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := models.GameTable{ID: s.id(), TableNumber: number, Status: models.GameTableStatusAvailable}
	s.tables[t.ID] = t
	return &t
}

func (s *memStore) addRegistration(tournamentID, userID int, status models.PaymentStatus, ref string) *models.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := models.Registration{ID: s.id(), TournamentID: tournamentID, UserID: userID, PaymentStatus: status, CreatedAt: time.Now()}
	if ref != "" {
		r.PaymentRef = &ref
	}
	s.registrations[r.ID] = r
	return &r
}

func (s *memStore) activeCountLocked(tournamentID int) int {
	n := 0
	for _, r := range s.registrations {
		if r.TournamentID == tournamentID && r.PaymentStatus.Active() {
			n++
		}
	}
	return n
}

func (s *memStore) registrationCount(tournamentID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.registrations {
		if r.TournamentID == tournamentID {
			n++
		}
	}
	return n
}

type memUserRepo struct{ *memStore }

func (r memUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repositories.ErrUserEmailConflict
		}
	}
	user.ID = r.id()
	user.CreatedAt = time.Now()
	r.users[user.ID] = *user
	return nil
}

func (r memUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return &u, nil
}

func (r memUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r memUserRepo) List(ctx context.Context) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.User, 0, len(r.users))
	for _, u := range r.users {
		u := u
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memUserRepo) Update(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return repositories.ErrUserNotFound
	}
	r.users[user.ID] = *user
	return nil
}

func (r memUserRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repositories.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

type memTournamentRepo struct{ *memStore }

func (r memTournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = r.id()
	t.CreatedAt = time.Now()
	r.tournaments[t.ID] = *t
	return nil
}

func (r memTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	return &t, nil
}

func (r memTournamentRepo) List(ctx context.Context, filter repositories.TournamentFilter) ([]*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Tournament, 0)
	for _, t := range r.tournaments {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	return out, nil
}

func (r memTournamentRepo) Update(ctx context.Context, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tournaments[t.ID]; !ok {
		return repositories.ErrTournamentNotFound
	}
	r.tournaments[t.ID] = *t
	return nil
}

func (r memTournamentRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tournaments[id]; !ok {
		return repositories.ErrTournamentNotFound
	}
	delete(r.tournaments, id)
	return nil
}

type memRegistrationRepo struct{ *memStore }

func (r memRegistrationRepo) CreateWithinCapacity(ctx context.Context, reg *models.Registration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[reg.TournamentID]
	if !ok {
		return 0, repositories.ErrRegistrationTournamentInvalid
	}
	active := r.activeCountLocked(reg.TournamentID)
	if active >= t.MaxPlayers {
		return 0, repositories.ErrRegistrationCapacityReached
	}
	for _, existing := range r.registrations {
		if existing.TournamentID == reg.TournamentID && existing.UserID == reg.UserID {
			return 0, repositories.ErrRegistrationConflict
		}
	}
	reg.ID = r.id()
	reg.CreatedAt = time.Now()
	stored := *reg
	stored.User, stored.Tournament = nil, nil
	r.registrations[reg.ID] = stored
	if reg.PaymentStatus.Active() {
		active++
	}
	return active, nil
}

func (r memRegistrationRepo) withDetailsLocked(reg models.Registration) *models.Registration {
	if u, ok := r.users[reg.UserID]; ok {
		reg.User = &u
	}
	if t, ok := r.tournaments[reg.TournamentID]; ok {
		reg.Tournament = &t
	}
	return &reg
}

func (r memRegistrationRepo) GetByID(ctx context.Context, id int) (*models.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registrations[id]
	if !ok {
		return nil, repositories.ErrRegistrationNotFound
	}
	return r.withDetailsLocked(reg), nil
}

func (r memRegistrationRepo) FindByUserAndTournament(ctx context.Context, userID, tournamentID int) (*models.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.registrations {
		if reg.UserID == userID && reg.TournamentID == tournamentID {
			return r.withDetailsLocked(reg), nil
		}
	}
	return nil, repositories.ErrRegistrationNotFound
}

func (r memRegistrationRepo) CountActiveByTournament(ctx context.Context, tournamentID int) (int, error) {
	r.mu.Lock()
	count := r.activeCountLocked(tournamentID)
	delay := r.countDelay
	r.mu.Unlock()
	time.Sleep(delay)
	return count, nil
}

func (r memRegistrationRepo) UpdateWithinCapacity(ctx context.Context, reg *models.Registration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[reg.TournamentID]
	if !ok {
		return 0, repositories.ErrRegistrationTournamentInvalid
	}
	if _, ok := r.registrations[reg.ID]; !ok {
		return 0, repositories.ErrRegistrationNotFound
	}
	active := 0
	for id, existing := range r.registrations {
		if id != reg.ID && existing.TournamentID == reg.TournamentID && existing.PaymentStatus.Active() {
			active++
		}
	}
	if active >= t.MaxPlayers {
		return 0, repositories.ErrRegistrationCapacityReached
	}
	stored := *reg
	stored.User, stored.Tournament = nil, nil
	r.registrations[reg.ID] = stored
	if reg.PaymentStatus.Active() {
		active++
	}
	return active, nil
}

func (r memRegistrationRepo) List(ctx context.Context, filter repositories.RegistrationFilter) ([]*models.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Registration, 0)
	for _, reg := range r.registrations {
		if filter.TournamentID != nil && reg.TournamentID != *filter.TournamentID {
			continue
		}
		if filter.UserID != nil && reg.UserID != *filter.UserID {
			continue
		}
		if filter.PaymentStatus != nil && reg.PaymentStatus != *filter.PaymentStatus {
			continue
		}
		if filter.WithPaymentRef && reg.PaymentRef == nil {
			continue
		}
		out = append(out, r.withDetailsLocked(reg))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r memRegistrationRepo) Update(ctx context.Context, reg *models.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.registrations[reg.ID]; !ok {
		return repositories.ErrRegistrationNotFound
	}
	stored := *reg
	stored.User, stored.Tournament = nil, nil
	r.registrations[reg.ID] = stored
	return nil
}

func (r memRegistrationRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.registrations[id]; !ok {
		return repositories.ErrRegistrationNotFound
	}
	delete(r.registrations, id)
	return nil
}

type memMatchRepo struct{ *memStore }

func (r memMatchRepo) Create(ctx context.Context, m *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = r.id()
	r.matches[m.ID] = *m
	return nil
}

func (r memMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return &m, nil
}

func (r memMatchRepo) List(ctx context.Context, filter repositories.MatchFilter) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Match, 0)
	for _, m := range r.matches {
		if filter.TournamentID != nil && m.TournamentID != *filter.TournamentID {
			continue
		}
		if filter.Round != nil && m.Round != *filter.Round {
			continue
		}
		m := m
		out = append(out, &m)
	}
	return out, nil
}

func (r memMatchRepo) Update(ctx context.Context, m *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.matches[m.ID]; !ok {
		return repositories.ErrMatchNotFound
	}
	r.matches[m.ID] = *m
	return nil
}

func (r memMatchRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.matches[id]; !ok {
		return repositories.ErrMatchNotFound
	}
	delete(r.matches, id)
	return nil
}

type memGameTableRepo struct{ *memStore }

func (r memGameTableRepo) Create(ctx context.Context, t *models.GameTable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tables {
		if existing.TableNumber == t.TableNumber {
			return repositories.ErrGameTableNumberConflict
		}
	}
	t.ID = r.id()
	r.tables[t.ID] = *t
	return nil
}

func (r memGameTableRepo) GetByID(ctx context.Context, id int) (*models.GameTable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[id]
	if !ok {
		return nil, repositories.ErrGameTableNotFound
	}
	return &t, nil
}

func (r memGameTableRepo) List(ctx context.Context) ([]*models.GameTable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.GameTable, 0)
	for _, t := range r.tables {
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableNumber < out[j].TableNumber })
	return out, nil
}

func (r memGameTableRepo) Update(ctx context.Context, t *models.GameTable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[t.ID]; !ok {
		return repositories.ErrGameTableNotFound
	}
	for id, existing := range r.tables {
		if id != t.ID && existing.TableNumber == t.TableNumber {
			return repositories.ErrGameTableNumberConflict
		}
	}
	r.tables[t.ID] = *t
	return nil
}

func (r memGameTableRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[id]; !ok {
		return repositories.ErrGameTableNotFound
	}
	delete(r.tables, id)
	return nil
}

// fakeGateway имитирует платежного провайдера.
type fakeGateway struct {
	mu        sync.Mutex
	createErr error
	getErr    error
	delay     time.Duration
	created   int
	cancelled []string
	statuses  map[string]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: make(map[string]string)}
}

func (g *fakeGateway) CreatePayment(ctx context.Context, req payments.PaymentRequest) (*payments.Payment, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created++
	id := strconv.Itoa(1000 + g.created)
	g.statuses[id] = "pending"
	return &payments.Payment{
		ID:             id,
		Status:         models.PaymentPending,
		ProviderStatus: "pending",
		QRCode:         "pix-code-" + id,
		QRCodeBase64:   "aW1hZ2U=",
		TicketURL:      "https://pay.example.com/" + id,
	}, nil
}

func (g *fakeGateway) GetPayment(ctx context.Context, id string) (*payments.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	status, ok := g.statuses[id]
	if !ok {
		return nil, payments.ErrProviderRejected
	}
	return &payments.Payment{ID: id, Status: payments.MapStatus(status), ProviderStatus: status}, nil
}

func (g *fakeGateway) CancelPayment(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, id)
	g.statuses[id] = "cancelled"
	return nil
}

func (g *fakeGateway) setStatus(id, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[id] = status
}

func (g *fakeGateway) counts() (created int, cancelled int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.created, len(g.cancelled)
}

// recordingPublisher запоминает опубликованные события.
type recordingPublisher struct {
	mu     sync.Mutex
	events []live.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event live.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) all() []live.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]live.Event(nil), p.events...)
}

func (p *recordingPublisher) tournamentStatuses() []live.TournamentStatus {
	var out []live.TournamentStatus
	for _, ev := range p.all() {
		if status, ok := ev.Payload.(live.TournamentStatus); ok {
			out = append(out, status)
		}
	}
	return out
}

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: make(map[string][]byte)}
}

func (u *fakeUploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	if u.err != nil {
		return nil, u.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects[key] = buf.Bytes()
	return &storage.UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (u *fakeUploader) keys() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, 0, len(u.objects))
	for k := range u.objects {
		out = append(out, k)
	}
	return out
}

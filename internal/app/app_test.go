package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"medifind/internal/booking"
	"medifind/internal/clinic"
	"medifind/internal/docstore"
	"medifind/internal/events"
	"medifind/internal/identity"
	"medifind/internal/kvstore"
	"medifind/internal/notify"
	"medifind/internal/state"
	"medifind/pkg/models"

	"github.com/sirupsen/logrus"
)

const bookingDate = "2099-03-01"

type fakeDrugs struct {
	medicines map[string]models.Medicine
}

func (f fakeDrugs) Search(_ context.Context, name string) (*models.Medicine, error) {
	m, ok := f.medicines[strings.ToLower(name)]
	if !ok {
		return nil, errors.New("no match")
	}
	return &m, nil
}

type fakeAssistant struct{}

func (fakeAssistant) AskAboutMedicine(_ context.Context, medicine, question string) (string, error) {
	return medicine + ": " + question, nil
}

type fakeSender struct{}

func (fakeSender) Send(context.Context, notify.Notification) error { return nil }
func (fakeSender) Authorize(context.Context) (bool, error)          { return true, nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ConsultationEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e events.ConsultationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMailer) SendConsultationConfirmation(to string, c models.Consultation, _ *time.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, "confirm:"+to+":"+c.ID)
	return nil
}

func (m *recordingMailer) SendConsultationCancellation(to string, c models.Consultation, _ *time.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, "cancel:"+to+":"+c.ID)
	return nil
}

// queryFailStore fails every query while failing is set. afterQuery, when set, runs once
// between reading the results and returning them.
type queryFailStore struct {
	*docstore.Memory
	mu         sync.Mutex
	failing    bool
	afterQuery func()
}

func (s *queryFailStore) setFailing(v bool) {
	s.mu.Lock()
	s.failing = v
	s.mu.Unlock()
}

func (s *queryFailStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.mu.Lock()
	failing := s.failing
	after := s.afterQuery
	s.afterQuery = nil
	s.mu.Unlock()
	if failing {
		return nil, errors.New("unavailable")
	}
	docs, err := s.Memory.Query(ctx, q)
	if after != nil {
		after()
	}
	return docs, err
}

type fixture struct {
	app       *App
	store     *queryFailStore
	publisher *recordingPublisher
	mailer    *recordingMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := &queryFailStore{Memory: docstore.NewMemory()}
	doctors := []models.Doctor{
		{ID: "D", Name: "Dr. D", Specialization: "cardiology", Rating: 4.5, ConsultationFee: 500, IsVerified: true},
		{ID: "E", Name: "Dr. E", Specialization: "dermatology", Rating: 4.9, ConsultationFee: 300, IsVerified: true},
	}
	for _, d := range doctors {
		if err := store.Set(ctx, clinic.CollectionDoctors, d.ID, d); err != nil {
			t.Fatalf("seed doctor: %v", err)
		}
	}
	availability := models.DoctorAvailability{
		DoctorID: "D",
		Date:     bookingDate,
		Slots: []models.TimeSlot{
			{StartTime: "09:00", EndTime: "09:30"},
			{StartTime: "09:30", EndTime: "10:00"},
		},
	}
	if err := store.Set(ctx, clinic.CollectionAvailability, clinic.AvailabilityID("D", bookingDate), availability); err != nil {
		t.Fatalf("seed availability: %v", err)
	}

	publisher := &recordingPublisher{}
	mailer := &recordingMailer{}
	a := New(Deps{
		Cache:    state.New(kvstore.NewMemory(), log),
		Clinic:   clinic.NewRepository(store, log, 5*time.Second),
		Booking:  booking.NewService(store, log, booking.WithLocation(time.UTC)),
		Notifier: notify.NewScheduler(fakeSender{}, log, time.UTC, time.Second),
		Drugs: fakeDrugs{medicines: map[string]models.Medicine{
			"aspirin": {ID: "m1", Name: "Aspirin"},
		}},
		Assistant: fakeAssistant{},
		Identity:  identity.Anonymous{},
		Events:    publisher,
		Mailer:    mailer,
		Log:       log,
		Location:  time.UTC,
	})
	a.Start(ctx)
	return &fixture{app: a, store: store, publisher: publisher, mailer: mailer}
}

func (f *fixture) signIn(t *testing.T, uid string) *models.User {
	t.Helper()
	u, err := f.app.SignIn(context.Background(), uid, uid+"@example.com")
	if err != nil {
		t.Fatalf("sign in %s: %v", uid, err)
	}
	return u
}

func hasPending(a *App, id string) bool {
	for _, p := range a.Notifier.Pending() {
		if p.Notification.ID == id {
			return true
		}
	}
	return false
}

func TestSearchMedicineRecordsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.app.ToggleFavorite(ctx, models.Medicine{ID: "m1", Name: "Aspirin"}); err != nil {
		t.Fatalf("toggle favorite: %v", err)
	}
	m, err := f.app.SearchMedicine(ctx, "Aspirin")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !m.IsFavorite {
		t.Fatalf("expected favorite flag on result")
	}
	if m.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}

	history := f.app.Cache.SearchHistory()
	if len(history) != 1 || history[0].ID != "m1" {
		t.Fatalf("expected history [m1], got %v", history)
	}

	if _, err := f.app.SearchMedicine(ctx, "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.app.SearchMedicine(ctx, "unknown"); err == nil {
		t.Fatalf("expected lookup error")
	}
	if len(f.app.Cache.SearchHistory()) != 1 {
		t.Fatalf("expected failed lookups to leave history unchanged")
	}
}

func TestAskAI(t *testing.T) {
	f := newFixture(t)

	answer, err := f.app.AskAI(context.Background(), "Aspirin", "dose?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if answer != "Aspirin: dose?" {
		t.Fatalf("expected echoed answer, got %q", answer)
	}
}

func TestBookingRequiresSignIn(t *testing.T) {
	f := newFixture(t)

	_, err := f.app.BookConsultation(context.Background(), BookInput{DoctorID: "D", Date: bookingDate, StartTime: "09:00"})
	if !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
}

func TestBookAndCancelConsultation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, "P")

	c, err := f.app.BookConsultation(ctx, BookInput{DoctorID: "D", Date: bookingDate, StartTime: "09:00", Symptoms: "cough"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if c.PatientID != "P" || c.DoctorName != "Dr. D" || c.ConsultationFee != 500 {
		t.Fatalf("unexpected consultation %+v", c)
	}

	cached := f.app.Cache.Consultations()
	if len(cached) != 1 || cached[0].ID != c.ID {
		t.Fatalf("expected consultation to be cached, got %v", cached)
	}
	if !hasPending(f.app, notify.ConsultationReminderID(c.ID)) {
		t.Fatalf("expected consultation reminder to be scheduled")
	}

	_, err = f.app.BookConsultation(ctx, BookInput{DoctorID: "D", Date: bookingDate, StartTime: "09:00"})
	if !errors.Is(err, booking.ErrSlotAlreadyBooked) {
		t.Fatalf("expected ErrSlotAlreadyBooked, got %v", err)
	}

	cancelled, err := f.app.CancelConsultation(ctx, c.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if got := f.app.Cache.Consultations()[0].Status; got != models.StatusCancelled {
		t.Fatalf("expected cached status cancelled, got %s", got)
	}
	if hasPending(f.app, notify.ConsultationReminderID(c.ID)) {
		t.Fatalf("expected consultation reminder to be removed")
	}

	slots, err := f.app.Availability(ctx, "D", bookingDate)
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if slots[0].IsBooked {
		t.Fatalf("expected slot to be released")
	}

	wantEvents := []string{events.TypeBooked, events.TypeCancelled}
	if got := f.publisher.types(); strings.Join(got, ",") != strings.Join(wantEvents, ",") {
		t.Fatalf("expected events %v, got %v", wantEvents, got)
	}
	if len(f.mailer.sent) != 2 || !strings.HasPrefix(f.mailer.sent[0], "confirm:P@example.com") {
		t.Fatalf("unexpected emails %v", f.mailer.sent)
	}
}

func TestCancelConsultationOfAnotherPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.signIn(t, "P")
	c, err := f.app.BookConsultation(ctx, BookInput{DoctorID: "D", Date: bookingDate, StartTime: "09:30"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	f.signIn(t, "Q")
	if len(f.app.Cache.Consultations()) != 0 {
		t.Fatalf("expected switching users to drop the previous consultations")
	}
	if _, err := f.app.CancelConsultation(ctx, c.ID); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStatusUpdateIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, "P")

	c, err := f.app.BookConsultation(ctx, BookInput{DoctorID: "D", Date: bookingDate, StartTime: "09:00"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := f.app.UpdateConsultationStatus(ctx, c.ID, models.StatusOngoing); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.app.UpdateConsultationStatus(ctx, c.ID, models.StatusScheduled); !errors.Is(err, booking.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if got := f.app.Cache.Consultations()[0].Status; got != models.StatusOngoing {
		t.Fatalf("expected cached status ongoing, got %s", got)
	}
}

func TestSyncKeepsBookingCommittedDuringFetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, "P")

	first, err := f.app.BookConsultation(ctx, BookInput{DoctorID: "D", Date: bookingDate, StartTime: "09:00"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	var second *models.Consultation
	f.store.mu.Lock()
	f.store.afterQuery = func() {
		second, err = f.app.BookConsultation(ctx, BookInput{DoctorID: "D", Date: bookingDate, StartTime: "09:30"})
	}
	f.store.mu.Unlock()

	if err := f.app.SyncConsultations(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err != nil {
		t.Fatalf("book during sync: %v", err)
	}

	ids := map[string]bool{}
	for _, c := range f.app.Cache.Consultations() {
		ids[c.ID] = true
	}
	if len(ids) != 2 || !ids[first.ID] || !ids[second.ID] {
		t.Fatalf("expected both consultations cached, got %v", ids)
	}
	if !hasPending(f.app, notify.ConsultationReminderID(second.ID)) {
		t.Fatalf("expected reminder for the consultation booked during sync")
	}
}

func TestSignInCreatesProfileAndSyncs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := f.signIn(t, "P")
	if u.Email != "P@example.com" {
		t.Fatalf("expected email from sign in, got %q", u.Email)
	}
	if _, err := f.app.Clinic.GetUser(ctx, "P"); err != nil {
		t.Fatalf("expected profile to be saved: %v", err)
	}

	if err := f.app.RegisterPushToken(ctx, "token-1"); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if f.app.PushToken() != "token-1" {
		t.Fatalf("expected cached token, got %q", f.app.PushToken())
	}
	if err := f.app.ClearPushToken(ctx, "other"); err != nil {
		t.Fatalf("clear other token: %v", err)
	}
	if f.app.PushToken() != "token-1" {
		t.Fatalf("expected unrelated token clear to be ignored")
	}
	if err := f.app.ClearPushToken(ctx, "token-1"); err != nil {
		t.Fatalf("clear token: %v", err)
	}
	if f.app.PushToken() != "" {
		t.Fatalf("expected token to be cleared")
	}
}

func TestSignOutKeepsLocalData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(t, "P")

	c, err := f.app.BookConsultation(ctx, BookInput{DoctorID: "D", Date: bookingDate, StartTime: "09:00"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	r, err := f.app.AddReminder(ctx, ReminderInput{MedicineName: "Aspirin", Time: time.Now().Add(time.Hour), Frequency: models.FrequencyDaily})
	if err != nil {
		t.Fatalf("add reminder: %v", err)
	}

	if err := f.app.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := f.app.CurrentUser(); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
	if hasPending(f.app, notify.ConsultationReminderID(c.ID)) {
		t.Fatalf("expected consultation reminder to be removed on sign out")
	}
	if len(f.app.Cache.Reminders()) != 1 || !hasPending(f.app, "reminder_"+r.ID+"_0") {
		t.Fatalf("expected medication reminder to survive sign out")
	}
}

func TestReminderLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Now().Add(2 * time.Hour)

	if _, err := f.app.AddReminder(ctx, ReminderInput{MedicineName: "Aspirin", Time: at, Frequency: "weekly"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	r, err := f.app.AddReminder(ctx, ReminderInput{MedicineName: "Aspirin", Time: at, Frequency: models.FrequencyThrice})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	for _, n := range []string{"0", "1", "2"} {
		if !hasPending(f.app, "reminder_"+r.ID+"_"+n) {
			t.Fatalf("expected notification %s to be scheduled", n)
		}
	}

	daily := models.FrequencyDaily
	if _, err := f.app.UpdateReminder(ctx, r.ID, models.ReminderPatch{Frequency: &daily}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if hasPending(f.app, "reminder_"+r.ID+"_1") {
		t.Fatalf("expected extra notifications to be removed")
	}

	disabled := false
	if _, err := f.app.UpdateReminder(ctx, r.ID, models.ReminderPatch{Enabled: &disabled}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if hasPending(f.app, "reminder_"+r.ID+"_0") {
		t.Fatalf("expected disabled reminder to have no notifications")
	}

	if _, err := f.app.UpdateReminder(ctx, "missing", models.ReminderPatch{Enabled: &disabled}); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := f.app.DeleteReminder(ctx, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(f.app.Cache.Reminders()) != 0 {
		t.Fatalf("expected reminder to be deleted")
	}
}

func TestDoctorsFallBackToStaleCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doctors, err := f.app.Doctors(ctx, false)
	if err != nil {
		t.Fatalf("doctors: %v", err)
	}
	if len(doctors) != 2 || doctors[0].ID != "E" {
		t.Fatalf("expected doctors ordered by rating, got %v", doctors)
	}

	f.store.setFailing(true)
	doctors, err = f.app.Doctors(ctx, true)
	if err != nil {
		t.Fatalf("expected stale fallback, got %v", err)
	}
	if len(doctors) != 2 {
		t.Fatalf("expected 2 cached doctors, got %d", len(doctors))
	}
	if _, err := f.app.DoctorsBySpecialization(ctx, "cardiology"); err == nil {
		t.Fatalf("expected query error while remote is failing")
	}
}

func TestDoctorsWithoutCacheReportsError(t *testing.T) {
	f := newFixture(t)
	f.store.setFailing(true)

	if _, err := f.app.Doctors(context.Background(), false); err == nil {
		t.Fatalf("expected error with empty cache")
	}
}

func TestAvailabilityRejectsBadDate(t *testing.T) {
	f := newFixture(t)

	if _, err := f.app.Availability(context.Background(), "D", "01/03/2099"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBookingRejectsMalformedSlot(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "P")

	_, err := f.app.BookConsultation(context.Background(), BookInput{DoctorID: "D", Date: bookingDate, StartTime: "9am"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/offmarket/offmarket/internal/domain"
	"github.com/offmarket/offmarket/internal/infra/memory"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []domain.PriceDrop
	failFor map[string]error
	panicOn string
}

func (n *fakeNotifier) SendPriceDropEmail(_ context.Context, drop domain.PriceDrop) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if drop.To == n.panicOn {
		panic("transport exploded")
	}
	if err, ok := n.failFor[drop.To]; ok {
		return "", err
	}
	n.sent = append(n.sent, drop)
	return "msg-" + drop.To, nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakePublisher struct {
	events []domain.AlertTriggered
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event domain.AlertTriggered) error {
	p.events = append(p.events, event)
	return p.err
}

// failingStore wraps the memory store and injects errors.
type failingStore struct {
	*memory.Store
	fetchErr error
	markErr  map[uint]error
	marked   []uint
}

func (s *failingStore) ListDueForEvaluation(ctx context.Context) ([]domain.AlertWithContext, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.Store.ListDueForEvaluation(ctx)
}

func (s *failingStore) MarkTriggered(ctx context.Context, alertID uint) error {
	s.marked = append(s.marked, alertID)
	if err, ok := s.markErr[alertID]; ok {
		return err
	}
	return s.Store.MarkTriggered(ctx, alertID)
}

type catalog struct {
	store   *memory.Store
	product domain.Product
}

func newCatalog(price string) catalog {
	s := memory.NewStore()
	shop := s.PutStore(domain.Store{Name: "Corner"})
	product := s.PutProduct(domain.Product{StoreID: shop.ID, Name: "Coffee", Price: decimal.RequireFromString(price), Currency: "USD"})
	return catalog{store: s, product: product}
}

func (c catalog) alert(t *testing.T, email, target string) domain.Alert {
	t.Helper()
	user := c.store.PutUser(email)
	alert, err := c.store.Create(context.Background(), user.ID, c.product.ID, decimal.RequireFromString(target), domain.DefaultRadiusKm)
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}
	return *alert
}

func newTestEvaluator(store domain.AlertStore, notifier Notifier, events EventPublisher) *Evaluator {
	return NewEvaluator(store, notifier, events, EvaluatorConfig{}, zap.NewNop())
}

func TestShouldTrigger(t *testing.T) {
	tests := []struct {
		current string
		want    bool
	}{
		{"10.00", true},
		{"9.99", true},
		{"10.01", false},
		{"10", true},
		{"0.1", true},
	}
	target := decimal.RequireFromString("10.00")
	for _, tt := range tests {
		if got := ShouldTrigger(decimal.RequireFromString(tt.current), target); got != tt.want {
			t.Errorf("current %s: want %v, got %v", tt.current, tt.want, got)
		}
	}
}

func TestRunTriggerBoundary(t *testing.T) {
	tests := []struct {
		price   string
		trigger bool
	}{
		{"10.00", true},
		{"9.99", true},
		{"10.01", false},
	}
	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			c := newCatalog(tt.price)
			alert := c.alert(t, "ana@example.com", "10.00")
			notifier := &fakeNotifier{}

			report, err := newTestEvaluator(c.store, notifier, nil).Run(context.Background())
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			stored, _ := c.store.Alert(alert.ID)
			if stored.Triggered != tt.trigger || stored.Active == tt.trigger {
				t.Fatalf("unexpected state %+v", stored)
			}
			wantSent := 0
			if tt.trigger {
				wantSent = 1
			}
			if notifier.count() != wantSent || report.Notified != wantSent {
				t.Fatalf("expected %d emails, got %d (report %+v)", wantSent, notifier.count(), report)
			}
			if report.Evaluated != 1 {
				t.Fatalf("expected 1 evaluated, got %d", report.Evaluated)
			}
		})
	}
}

func TestRunIsolatesSendFailures(t *testing.T) {
	c := newCatalog("5.00")
	first := c.alert(t, "a@example.com", "6.00")
	second := c.alert(t, "b@example.com", "6.00")
	third := c.alert(t, "c@example.com", "6.00")
	notifier := &fakeNotifier{failFor: map[string]error{"b@example.com": errors.New("smtp 451")}}

	report, err := newTestEvaluator(c.store, notifier, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, a := range []domain.Alert{first, second, third} {
		stored, _ := c.store.Alert(a.ID)
		if !stored.Triggered || stored.Active {
			t.Fatalf("alert %d should be resolved even when its email failed: %+v", a.ID, stored)
		}
	}
	if notifier.count() != 2 {
		t.Fatalf("expected 2 emails, got %d", notifier.count())
	}
	if report.Triggered != 3 || report.Notified != 2 || report.SendFailures != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRunRecoversFromPanics(t *testing.T) {
	c := newCatalog("5.00")
	c.alert(t, "a@example.com", "6.00")
	boom := c.alert(t, "boom@example.com", "6.00")
	third := c.alert(t, "c@example.com", "6.00")
	notifier := &fakeNotifier{panicOn: "boom@example.com"}
	evaluator := newTestEvaluator(c.store, notifier, nil)

	report, err := evaluator.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Evaluated != 3 || report.Triggered != 3 {
		t.Fatalf("all alerts should be evaluated and triggered, got %+v", report)
	}
	if report.SendFailures != 1 || report.Notified != 2 {
		t.Fatalf("a panicking transport counts as a send failure, got %+v", report)
	}
	stored, _ := c.store.Alert(third.ID)
	if !stored.Triggered {
		t.Fatal("alert after the panic should still be processed")
	}
	stored, _ = c.store.Alert(boom.ID)
	if !stored.Triggered || stored.Active {
		t.Fatalf("alert whose send panicked must be resolved, got %+v", stored)
	}

	for i := 0; i < 2; i++ {
		again, err := evaluator.Run(context.Background())
		if err != nil {
			t.Fatalf("rerun: %v", err)
		}
		if again.Evaluated != 0 || again.Triggered != 0 {
			t.Fatalf("resolved alerts must not fire again, got %+v", again)
		}
	}
}

func TestRunIsolatesWriteFailures(t *testing.T) {
	c := newCatalog("5.00")
	first := c.alert(t, "a@example.com", "6.00")
	second := c.alert(t, "b@example.com", "6.00")
	store := &failingStore{Store: c.store, markErr: map[uint]error{first.ID: errors.New("db locked")}}
	publisher := &fakePublisher{}

	report, err := newTestEvaluator(store, &fakeNotifier{}, publisher).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.WriteFailures != 1 || report.Notified != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	stored, _ := c.store.Alert(second.ID)
	if !stored.Triggered {
		t.Fatal("second alert should be resolved")
	}
	if len(publisher.events) != 1 || publisher.events[0].AlertID != second.ID {
		t.Fatalf("only resolved alerts are published, got %+v", publisher.events)
	}
}

func TestRunFetchFailure(t *testing.T) {
	c := newCatalog("5.00")
	c.alert(t, "a@example.com", "6.00")
	store := &failingStore{Store: c.store, fetchErr: errors.New("connection refused")}
	notifier := &fakeNotifier{}

	report, err := newTestEvaluator(store, notifier, nil).Run(context.Background())
	if !errors.Is(err, domain.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if report.RunID == "" || report.Evaluated != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if notifier.count() != 0 || len(store.marked) != 0 {
		t.Fatal("nothing should happen after a failed fetch")
	}
}

func TestRunPublishesEvents(t *testing.T) {
	c := newCatalog("7.50")
	alert := c.alert(t, "a@example.com", "8.00")
	publisher := &fakePublisher{err: errors.New("sink down")}

	report, err := newTestEvaluator(c.store, &fakeNotifier{}, publisher).Run(context.Background())
	if err != nil {
		t.Fatalf("publisher errors must not fail the run: %v", err)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.AlertID != alert.ID || !event.Notified || event.RunID != report.RunID || event.StoreName != "Corner" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestRunEndToEndPriceDrop(t *testing.T) {
	c := newCatalog("8.50")
	alert := c.alert(t, "ana@example.com", "7.99")
	notifier := &fakeNotifier{}
	evaluator := newTestEvaluator(c.store, notifier, nil)
	ctx := context.Background()

	if _, err := evaluator.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	stored, _ := c.store.Alert(alert.ID)
	if notifier.count() != 0 || !stored.Active || stored.Triggered {
		t.Fatalf("no email expected above target: sent=%d state=%+v", notifier.count(), stored)
	}

	if err := c.store.SetPrice(c.product.ID, decimal.RequireFromString("7.50")); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if _, err := evaluator.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	stored, _ = c.store.Alert(alert.ID)
	if notifier.count() != 1 || stored.Active || !stored.Triggered {
		t.Fatalf("expected one email and a resolved alert: sent=%d state=%+v", notifier.count(), stored)
	}
	if notifier.sent[0].To != "ana@example.com" || !notifier.sent[0].CurrentPrice.Equal(decimal.RequireFromString("7.5")) {
		t.Fatalf("unexpected email %+v", notifier.sent[0])
	}

	report, err := evaluator.Run(ctx)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if notifier.count() != 1 || report.Evaluated != 0 {
		t.Fatalf("triggered alert must not fire again: sent=%d report=%+v", notifier.count(), report)
	}
}

func TestRunSkipsPausedAlerts(t *testing.T) {
	c := newCatalog("1.00")
	alert := c.alert(t, "a@example.com", "5.00")
	if _, err := c.store.ToggleActive(context.Background(), alert.ID, alert.UserID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	notifier := &fakeNotifier{}

	report, err := newTestEvaluator(c.store, notifier, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Evaluated != 0 || notifier.count() != 0 {
		t.Fatalf("paused alert must not be evaluated: %+v", report)
	}
}

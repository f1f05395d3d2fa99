package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptengine/services/booking-service/internal/outbox"
)

// Memory is an in-process Store. Transactions take exclusive row locks on
// providers, clients, appointments and idempotency keys, stage their writes,
// and apply them atomically on commit. Because every appointment write holds
// the provider and client locks, reads made under those locks are stable for
// the rest of the transaction.
type Memory struct {
	mu           sync.RWMutex
	providers    map[string]model.Provider
	clients      map[string]model.Client
	appointments map[string]model.Appointment
	exceptions   map[string]model.AvailabilityException
	idempotency  map[string][]byte
	outbox       []outbox.Event
	seq          int64

	locks       *rowLocks
	lockTimeout time.Duration
}

func NewMemory(lockTimeout time.Duration) *Memory {
	return &Memory{
		providers:    make(map[string]model.Provider),
		clients:      make(map[string]model.Client),
		appointments: make(map[string]model.Appointment),
		exceptions:   make(map[string]model.AvailabilityException),
		idempotency:  make(map[string][]byte),
		locks:        &rowLocks{rows: make(map[string]chan struct{})},
		lockTimeout:  lockTimeout,
	}
}

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{
		m:          m,
		held:       make(map[string]bool),
		appts:      make(map[string]model.Appointment),
		clients:    make(map[string]model.Client),
		exceptions: make(map[string]model.AvailabilityException),
		idem:       make(map[string][]byte),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (m *Memory) Snapshot(ctx context.Context, fn func(ctx context.Context, tx ReadTx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(ctx, &memTx{m: m, snapshot: true})
}

// SaveProvider takes the provider row lock so a profile edit cannot be
// overwritten by a transaction that already holds it.
func (m *Memory) SaveProvider(ctx context.Context, p model.Provider) error {
	key := "provider:" + p.ID
	if err := m.locks.acquire(ctx, key, m.lockTimeout); err != nil {
		return err
	}
	defer m.locks.release(key)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.providers[p.ID] = p
	return nil
}

// SaveClient takes the client row lock, same as SaveProvider.
func (m *Memory) SaveClient(ctx context.Context, c model.Client) error {
	key := "client:" + c.ID
	if err := m.locks.acquire(ctx, key, m.lockTimeout); err != nil {
		return err
	}
	defer m.locks.release(key)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.clients[c.ID] = c
	return nil
}

func (m *Memory) Ready(context.Context) error { return nil }

// Outbox returns a copy of every committed outbox event.
func (m *Memory) Outbox() []outbox.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]outbox.Event(nil), m.outbox...)
}

type rowLocks struct {
	mu   sync.Mutex
	rows map[string]chan struct{}
}

func (l *rowLocks) acquire(ctx context.Context, key string, timeout time.Duration) error {
	l.mu.Lock()
	ch, ok := l.rows[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.rows[key] = ch
	}
	l.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return ErrLockTimeout
	}
}

func (l *rowLocks) release(key string) {
	l.mu.Lock()
	ch := l.rows[key]
	l.mu.Unlock()
	<-ch
}

type memTx struct {
	m        *Memory
	snapshot bool // m.mu is already read-locked for the whole view

	held         map[string]bool
	order        []string
	clientLocked bool

	appts      map[string]model.Appointment
	clients    map[string]model.Client
	exceptions map[string]model.AvailabilityException
	idem       map[string][]byte
	outbox     []outbox.Event
}

func (t *memTx) rlock() {
	if !t.snapshot {
		t.m.mu.RLock()
	}
}

func (t *memTx) runlock() {
	if !t.snapshot {
		t.m.mu.RUnlock()
	}
}

func (t *memTx) lock(ctx context.Context, key string) error {
	if t.held[key] {
		return nil
	}
	if err := t.m.locks.acquire(ctx, key, t.m.lockTimeout); err != nil {
		return err
	}
	t.held[key] = true
	t.order = append(t.order, key)
	return nil
}

func (t *memTx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.m.locks.release(t.order[i])
	}
	t.order = nil
	t.held = nil
}

func (t *memTx) commit() {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range t.appts {
		m.appointments[id] = a
	}
	for id, c := range t.clients {
		m.clients[id] = c
	}
	for id, e := range t.exceptions {
		m.exceptions[id] = e
	}
	for k, v := range t.idem {
		m.idempotency[k] = v
	}
	m.outbox = append(m.outbox, t.outbox...)
}

func (t *memTx) Provider(_ context.Context, id string) (model.Provider, error) {
	t.rlock()
	defer t.runlock()
	p, ok := t.m.providers[id]
	if !ok || p.DeletedAt != nil {
		return model.Provider{}, ErrNotFound
	}
	return p, nil
}

func (t *memTx) Client(_ context.Context, id string) (model.Client, error) {
	if c, ok := t.clients[id]; ok {
		return c, nil
	}
	t.rlock()
	defer t.runlock()
	c, ok := t.m.clients[id]
	if !ok || c.DeletedAt != nil {
		return model.Client{}, ErrNotFound
	}
	return c, nil
}

func (t *memTx) Appointment(_ context.Context, id string) (model.Appointment, error) {
	a, ok := t.appts[id]
	if !ok {
		t.rlock()
		a, ok = t.m.appointments[id]
		t.runlock()
	}
	if !ok || a.DeletedAt != nil {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (t *memTx) Exception(_ context.Context, providerID, id string) (model.AvailabilityException, error) {
	e, ok := t.exceptions[id]
	if !ok {
		t.rlock()
		e, ok = t.m.exceptions[id]
		t.runlock()
	}
	if !ok || e.ProviderID != providerID || e.DeletedAt != nil {
		return model.AvailabilityException{}, ErrNotFound
	}
	return e, nil
}

func (t *memTx) appointmentsWhere(pred func(model.Appointment) bool) []model.Appointment {
	var out []model.Appointment
	t.rlock()
	for id, a := range t.m.appointments {
		if _, staged := t.appts[id]; staged {
			continue
		}
		if pred(a) {
			out = append(out, a)
		}
	}
	t.runlock()
	for _, a := range t.appts {
		if pred(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (t *memTx) ProviderAppointments(_ context.Context, providerID string, start, end time.Time) ([]model.Appointment, error) {
	return t.appointmentsWhere(func(a model.Appointment) bool {
		return a.ProviderID == providerID && a.Blocking() && model.Overlaps(a.StartTime, a.EndTime, start, end)
	}), nil
}

func (t *memTx) ClientAppointments(_ context.Context, clientID string, start, end time.Time) ([]model.Appointment, error) {
	return t.appointmentsWhere(func(a model.Appointment) bool {
		return a.ClientID == clientID && a.Blocking() && model.Overlaps(a.StartTime, a.EndTime, start, end)
	}), nil
}

func (t *memTx) AppointmentsByProvider(_ context.Context, providerID string, from, to time.Time) ([]model.Appointment, error) {
	return t.appointmentsWhere(func(a model.Appointment) bool {
		return a.ProviderID == providerID && a.DeletedAt == nil && model.Overlaps(a.StartTime, a.EndTime, from, to)
	}), nil
}

func (t *memTx) AppointmentsByClient(_ context.Context, clientID string, limit int) ([]model.Appointment, error) {
	out := t.appointmentsWhere(func(a model.Appointment) bool {
		return a.ClientID == clientID && a.DeletedAt == nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) NoShowCandidates(_ context.Context, startedBefore time.Time, limit int) ([]model.Appointment, error) {
	out := t.appointmentsWhere(func(a model.Appointment) bool {
		return a.DeletedAt == nil &&
			(a.Status == model.StatusScheduled || a.Status == model.StatusConfirmed) &&
			a.StartTime.Before(startedBefore)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) Exceptions(_ context.Context, providerID string, start, end time.Time) ([]model.AvailabilityException, error) {
	match := func(e model.AvailabilityException) bool {
		if e.ProviderID != providerID || e.DeletedAt != nil {
			return false
		}
		if e.Recurrence != nil {
			return e.StartTime.Before(end)
		}
		return model.Overlaps(e.StartTime, e.EndTime, start, end)
	}
	var out []model.AvailabilityException
	t.rlock()
	for id, e := range t.m.exceptions {
		if _, staged := t.exceptions[id]; staged {
			continue
		}
		if match(e) {
			out = append(out, e)
		}
	}
	t.runlock()
	for _, e := range t.exceptions {
		if match(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (t *memTx) LockProvider(ctx context.Context, id string) (model.Provider, error) {
	key := "provider:" + id
	if t.clientLocked && !t.held[key] {
		return model.Provider{}, ErrLockOrder
	}
	if err := t.lock(ctx, key); err != nil {
		return model.Provider{}, err
	}
	return t.Provider(ctx, id)
}

func (t *memTx) LockClient(ctx context.Context, id string) (model.Client, error) {
	if err := t.lock(ctx, "client:"+id); err != nil {
		return model.Client{}, err
	}
	t.clientLocked = true
	return t.Client(ctx, id)
}

func (t *memTx) LockAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if err := t.lock(ctx, "appointment:"+id); err != nil {
		return model.Appointment{}, err
	}
	return t.Appointment(ctx, id)
}

func (t *memTx) LockIdempotencyKey(ctx context.Context, scope, key string) (IdempotencyRecord, bool, error) {
	k := scope + "\x00" + key
	if err := t.lock(ctx, "idempotency:"+k); err != nil {
		return IdempotencyRecord{}, false, err
	}
	rec := IdempotencyRecord{Scope: scope, IdempotencyKey: key}
	t.rlock()
	resp, ok := t.m.idempotency[k]
	t.runlock()
	if ok && len(resp) > 0 {
		rec.ResponsePayload = resp
		return rec, true, nil
	}
	return rec, false, nil
}

func (t *memTx) FinalizeIdempotency(_ context.Context, scope, key string, response []byte) error {
	t.idem[scope+"\x00"+key] = append([]byte(nil), response...)
	return nil
}

func (t *memTx) NextAppointmentNumber(_ context.Context, at time.Time) (string, error) {
	t.m.mu.Lock()
	t.m.seq++
	n := t.m.seq
	t.m.mu.Unlock()
	return FormatAppointmentNumber(at, n), nil
}

func (t *memTx) InsertAppointment(_ context.Context, a model.Appointment) error {
	t.appts[a.ID] = a
	return nil
}

func (t *memTx) UpdateAppointment(ctx context.Context, a model.Appointment) error {
	if _, err := t.Appointment(ctx, a.ID); err != nil {
		return err
	}
	t.appts[a.ID] = a
	return nil
}

func (t *memTx) UpdateClient(ctx context.Context, c model.Client) error {
	if _, err := t.Client(ctx, c.ID); err != nil {
		return err
	}
	t.clients[c.ID] = c
	return nil
}

func (t *memTx) InsertException(_ context.Context, e model.AvailabilityException) error {
	t.exceptions[e.ID] = e
	return nil
}

func (t *memTx) UpdateException(ctx context.Context, e model.AvailabilityException) error {
	if _, err := t.Exception(ctx, e.ProviderID, e.ID); err != nil {
		return err
	}
	t.exceptions[e.ID] = e
	return nil
}

func (t *memTx) AppendOutbox(_ context.Context, evt outbox.Event) error {
	t.outbox = append(t.outbox, evt)
	return nil
}

// Package remotetest provides an in-memory remote.Client for tests.
package remotetest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/remote"
)

type user struct {
	identity remote.Identity
	password string
}

// ResetRequest records a ResetPasswordForEmail call.
type ResetRequest struct {
	Email      string
	RedirectTo string
}

// Fake is an in-memory backend. Registration inserts enforce the same
// constraints as the Postgres backend: unique (user_id, event_id), existing
// event, positive slots.
type Fake struct {
	mu        sync.Mutex
	tables    map[string][]map[string]any
	missing   map[string]bool
	failures  map[string]error
	users     map[string]*user
	session   *remote.Session
	listeners map[int]remote.AuthListener
	nextID    int

	// Block, when set, makes every auth call wait for it to be closed. The
	// wait ignores the context, like a request already on the wire.
	Block chan struct{}

	// ConfirmEmail makes SignUp return no session.
	ConfirmEmail bool

	Resets     []ResetRequest
	SignUps    []remote.SignUpOptions
	SignOuts   int
	Passwords  map[string]string
	Recoveries map[string]string
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		tables:     make(map[string][]map[string]any),
		missing:    make(map[string]bool),
		failures:   make(map[string]error),
		users:      make(map[string]*user),
		listeners:  make(map[int]remote.AuthListener),
		Passwords:  make(map[string]string),
		Recoveries: make(map[string]string),
	}
}

// DropTable makes every operation on table fail as if it did not exist.
func (f *Fake) DropTable(table string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missing[table] = true
}

// FailOn makes the named operation ("SelectAll", "SignOut", ...) return err.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// AddUser registers an identity that can sign in.
func (f *Fake) AddUser(id, email, password, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[email] = &user{
		identity: remote.Identity{ID: id, Email: email, Metadata: map[string]string{"full_name": name}},
		password: password,
	}
}

// Seed stores rows in table, replacing its content.
func (f *Fake) Seed(table string, rows any) {
	var decoded []map[string]any
	b, err := json.Marshal(rows)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = decoded
}

// Rows decodes the content of table into dst.
func (f *Fake) Rows(table string, dst any) {
	f.mu.Lock()
	b, err := json.Marshal(f.tables[table])
	f.mu.Unlock()
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		panic(err)
	}
}

// Emit fires an auth-state change as the backend would.
func (f *Fake) Emit(event remote.AuthEvent, s *remote.Session) {
	f.mu.Lock()
	f.session = s
	f.mu.Unlock()
	f.notify(event, s)
}

// SignOutCount returns how many sign-outs succeeded.
func (f *Fake) SignOutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SignOuts
}

// Listeners returns the number of registered auth listeners.
func (f *Fake) Listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *Fake) fail(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[op]
}

func (f *Fake) wait() {
	if f.Block != nil {
		<-f.Block
	}
}

func (f *Fake) notify(event remote.AuthEvent, s *remote.Session) {
	f.mu.Lock()
	ls := make([]remote.AuthListener, 0, len(f.listeners))
	for _, l := range f.listeners {
		ls = append(ls, l)
	}
	f.mu.Unlock()
	for _, l := range ls {
		l(event, s)
	}
}

func (f *Fake) newSession(id remote.Identity) *remote.Session {
	return &remote.Session{
		AccessToken: uuid.NewString(),
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        id,
	}
}

func (f *Fake) SignInWithPassword(ctx context.Context, email, password string) (*remote.Session, error) {
	f.wait()
	if err := f.fail("SignInWithPassword"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	u, ok := f.users[email]
	if !ok || u.password != password {
		f.mu.Unlock()
		return nil, remote.ErrInvalidLogin
	}
	s := f.newSession(u.identity)
	f.session = s
	f.mu.Unlock()
	f.notify(remote.EventSignedIn, s)
	return s, nil
}

func (f *Fake) SignUp(ctx context.Context, email, password string, opts remote.SignUpOptions) (*remote.Identity, *remote.Session, error) {
	f.wait()
	if err := f.fail("SignUp"); err != nil {
		return nil, nil, err
	}
	f.mu.Lock()
	if _, ok := f.users[email]; ok {
		f.mu.Unlock()
		return nil, nil, remote.ErrUserExists
	}
	u := &user{
		identity: remote.Identity{ID: uuid.NewString(), Email: email, Metadata: map[string]string{"full_name": opts.Name}},
		password: password,
	}
	f.users[email] = u
	f.SignUps = append(f.SignUps, opts)
	f.tables[remote.TableProfiles] = append(f.tables[remote.TableProfiles], map[string]any{
		"id": u.identity.ID, "email": email, "full_name": opts.Name, "role": "user",
	})
	if f.ConfirmEmail {
		f.mu.Unlock()
		id := u.identity
		return &id, nil, nil
	}
	s := f.newSession(u.identity)
	f.session = s
	f.mu.Unlock()
	f.notify(remote.EventSignedIn, s)
	id := u.identity
	return &id, s, nil
}

func (f *Fake) SignOut(ctx context.Context) error {
	f.wait()
	if err := f.fail("SignOut"); err != nil {
		return err
	}
	f.mu.Lock()
	f.session = nil
	f.SignOuts++
	f.mu.Unlock()
	f.notify(remote.EventSignedOut, nil)
	return nil
}

func (f *Fake) GetSession(ctx context.Context) (*remote.Session, error) {
	if err := f.fail("GetSession"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, nil
	}
	s := *f.session
	return &s, nil
}

func (f *Fake) OnAuthStateChange(fn remote.AuthListener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *Fake) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	f.wait()
	if err := f.fail("ResetPasswordForEmail"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Resets = append(f.Resets, ResetRequest{Email: email, RedirectTo: redirectTo})
	if _, ok := f.users[email]; ok {
		f.Recoveries["token-"+strconv.Itoa(len(f.Resets))] = email
	}
	return nil
}

func (f *Fake) VerifyRecovery(ctx context.Context, token string) (*remote.Session, error) {
	f.mu.Lock()
	email, ok := f.Recoveries[token]
	if !ok {
		f.mu.Unlock()
		return nil, remote.ErrInvalidToken
	}
	delete(f.Recoveries, token)
	s := f.newSession(f.users[email].identity)
	f.session = s
	f.mu.Unlock()
	f.notify(remote.EventPasswordRecovery, s)
	return s, nil
}

func (f *Fake) UpdateUser(ctx context.Context, attrs remote.UserAttributes) error {
	f.wait()
	if err := f.fail("UpdateUser"); err != nil {
		return err
	}
	f.mu.Lock()
	if f.session == nil {
		f.mu.Unlock()
		return remote.ErrNoSession
	}
	s := f.session
	if u, ok := f.users[s.User.Email]; ok && attrs.Password != "" {
		u.password = attrs.Password
		f.Passwords[s.User.Email] = attrs.Password
	}
	f.mu.Unlock()
	f.notify(remote.EventUserUpdated, s)
	return nil
}

func (f *Fake) check(op, table string) error {
	if err := f.fail(op); err != nil {
		return err
	}
	if !remote.KnownTable(table) {
		return fmt.Errorf("%s: %w", table, remote.ErrUnknownTable)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[table] {
		return fmt.Errorf("relation %q: %w", table, remote.ErrUndefinedTable)
	}
	return nil
}

func (f *Fake) SelectAll(ctx context.Context, table string, dst any) error {
	if err := f.check("SelectAll", table); err != nil {
		return err
	}
	f.mu.Lock()
	rows := f.tables[table]
	if rows == nil {
		rows = []map[string]any{}
	}
	b, err := json.Marshal(rows)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func (f *Fake) SelectByID(ctx context.Context, table, id string, dst any) error {
	if err := f.check("SelectByID", table); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.tables[table] {
		if fmt.Sprint(row["id"]) == id {
			b, err := json.Marshal(row)
			if err != nil {
				return err
			}
			return json.Unmarshal(b, dst)
		}
	}
	return remote.ErrNoRows
}

func decode(row any) (map[string]any, error) {
	b, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (f *Fake) Insert(ctx context.Context, table string, row any) error {
	if err := f.check("Insert", table); err != nil {
		return err
	}
	m, err := decode(row)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := m["id"]; !ok || id == "" || id == nil {
		m["id"] = uuid.NewString()
	}
	if table == remote.TableRegistrations {
		if err := f.book(m); err != nil {
			return err
		}
	}
	for _, existing := range f.tables[table] {
		if fmt.Sprint(existing["id"]) == fmt.Sprint(m["id"]) {
			return remote.ErrDuplicate
		}
	}
	f.tables[table] = append(f.tables[table], m)
	return nil
}

// book applies the registration constraints. Caller holds f.mu.
func (f *Fake) book(m map[string]any) error {
	userID, eventID := fmt.Sprint(m["user_id"]), fmt.Sprint(m["event_id"])
	for _, r := range f.tables[remote.TableRegistrations] {
		if fmt.Sprint(r["user_id"]) == userID && fmt.Sprint(r["event_id"]) == eventID {
			return fmt.Errorf("registrations_user_event_key: %w", remote.ErrDuplicate)
		}
	}
	for _, e := range f.tables[remote.TableEvents] {
		if fmt.Sprint(e["id"]) != eventID {
			continue
		}
		slots, _ := e["slots"].(float64)
		if slots <= 0 {
			return fmt.Errorf("events_slots_check: %w", remote.ErrCheckViolation)
		}
		e["slots"] = slots - 1
		return nil
	}
	return fmt.Errorf("event %s: %w", eventID, remote.ErrNoRows)
}

func (f *Fake) DeleteByID(ctx context.Context, table, id string) error {
	if err := f.check("DeleteByID", table); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.tables[table][:0]
	for _, row := range f.tables[table] {
		if fmt.Sprint(row["id"]) != id {
			rows = append(rows, row)
		}
	}
	f.tables[table] = rows
	return nil
}

func (f *Fake) Upsert(ctx context.Context, table string, row any) error {
	if err := f.check("Upsert", table); err != nil {
		return err
	}
	m, err := decode(row)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.tables[table] {
		if fmt.Sprint(existing["id"]) == fmt.Sprint(m["id"]) {
			f.tables[table][i] = m
			return nil
		}
	}
	f.tables[table] = append(f.tables[table], m)
	return nil
}

var _ remote.Client = (*Fake)(nil)

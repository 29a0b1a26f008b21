package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AccessSecret = []byte(strings.Repeat("a", 32))
	cfg.RefreshSecret = []byte(strings.Repeat("r", 32))
	cfg.BcryptCost = bcrypt.MinCost
	cfg.HashWorkers = 2
	cfg.RetryInterval = time.Millisecond
	return cfg
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeCredentials struct {
	mu       sync.Mutex
	records  map[string]CredentialRecord
	findErrs []error
	finds    int
	updates  int
}

func newFakeCredentials(recs ...CredentialRecord) *fakeCredentials {
	f := &fakeCredentials{records: make(map[string]CredentialRecord)}
	for _, r := range recs {
		f.records[r.Email] = r
	}
	return f
}

func (f *fakeCredentials) FindByEmail(_ context.Context, email string) (CredentialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	if len(f.findErrs) > 0 {
		err := f.findErrs[0]
		f.findErrs = f.findErrs[1:]
		return CredentialRecord{}, err
	}
	rec, ok := f.records[email]
	if !ok {
		return CredentialRecord{}, ErrNotFound
	}
	return rec, nil
}

func (f *fakeCredentials) Create(_ context.Context, rec CredentialRecord) (CredentialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[rec.Email]; ok {
		return CredentialRecord{}, ErrConflict
	}
	f.records[rec.Email] = rec
	return rec, nil
}

func (f *fakeCredentials) UpdatePasswordHash(_ context.Context, subjectID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, rec := range f.records {
		if rec.SubjectID == subjectID {
			rec.PasswordHash = hash
			f.records[email] = rec
			f.updates++
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeCredentials) Identity(_ context.Context, subjectID, organizationID string) (CredentialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.SubjectID == subjectID && rec.OrganizationID == organizationID {
			return rec, nil
		}
	}
	return CredentialRecord{}, ErrNotFound
}

func (f *fakeCredentials) setRole(subjectID string, role Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, rec := range f.records {
		if rec.SubjectID == subjectID {
			rec.Role = role
			f.records[email] = rec
		}
	}
}

type fakeRevocations struct {
	mu         sync.Mutex
	records    map[string]RevocationRecord
	existsErrs []error
}

func newFakeRevocations() *fakeRevocations {
	return &fakeRevocations{records: make(map[string]RevocationRecord)}
}

func (f *fakeRevocations) InsertIfAbsent(_ context.Context, rec RevocationRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[rec.TokenID]; ok {
		return false, nil
	}
	f.records[rec.TokenID] = rec
	return true, nil
}

func (f *fakeRevocations) Exists(_ context.Context, tokenID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.existsErrs) > 0 {
		err := f.existsErrs[0]
		f.existsErrs = f.existsErrs[1:]
		return false, err
	}
	_, ok := f.records[tokenID]
	return ok, nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingAudit) Record(_ context.Context, event string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingAudit) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

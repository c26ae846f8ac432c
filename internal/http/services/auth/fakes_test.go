package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farutech/tenantcore/internal/domain/repository"
	"github.com/farutech/tenantcore/internal/jwt"
	"github.com/farutech/tenantcore/internal/security/password"
)

// Parámetros baratos: Verify lee los parámetros del PHC.
var testParams = password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}

type memStore struct {
	mu          sync.Mutex
	users       map[string]*repository.User
	customers   map[uuid.UUID]repository.Customer
	instances   map[uuid.UUID][]repository.TenantInstance
	memberships []repository.Membership
	resets      map[string]*repository.PasswordResetToken
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]*repository.User{},
		customers: map[uuid.UUID]repository.Customer{},
		instances: map[uuid.UUID][]repository.TenantInstance{},
		resets:    map[string]*repository.PasswordResetToken{},
	}
}

func (s *memStore) addUser(email, plain string, active bool) *repository.User {
	hash, err := password.Hash(testParams, plain)
	if err != nil {
		panic(err)
	}
	u := &repository.User{ID: uuid.New(), Email: email, FullName: "Ana Pérez", PasswordHash: hash, IsActive: active}
	s.users[email] = u
	return u
}

func (s *memStore) addCustomer(name string, active bool) repository.Customer {
	c := repository.Customer{ID: uuid.New(), Code: name[:3], Name: name, IsActive: active}
	s.customers[c.ID] = c
	return c
}

func (s *memStore) addMembership(userID, customerID uuid.UUID, role string) {
	s.memberships = append(s.memberships, repository.Membership{
		ID: uuid.New(), UserID: userID, CustomerID: customerID, Role: role,
	})
}

func (s *memStore) removeMembership(userID, customerID uuid.UUID) {
	for i := range s.memberships {
		if s.memberships[i].UserID == userID && s.memberships[i].CustomerID == customerID {
			s.memberships[i].IsDeleted = true
		}
	}
}

// UserRepository

type userRepo struct{ s *memStore }

func (r userRepo) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r userRepo) GetByID(_ context.Context, id uuid.UUID) (*repository.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

// MembershipReader

type membershipRepo struct{ s *memStore }

func (r membershipRepo) ListActiveByUser(_ context.Context, userID uuid.UUID) ([]repository.Membership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []repository.Membership
	for _, m := range r.s.memberships {
		if m.UserID == userID && !m.IsDeleted {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r membershipRepo) Get(_ context.Context, userID, customerID uuid.UUID) (*repository.Membership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.memberships {
		if m.UserID == userID && m.CustomerID == customerID && !m.IsDeleted {
			cp := m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

// CustomerRepository

type customerRepo struct{ s *memStore }

func (r customerRepo) GetByID(_ context.Context, id uuid.UUID) (*repository.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.customers[id]
	if !ok || c.IsDeleted {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r customerRepo) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]repository.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[uuid.UUID]repository.Customer{}
	for _, id := range ids {
		if c, ok := r.s.customers[id]; ok && !c.IsDeleted {
			out[id] = c
		}
	}
	return out, nil
}

// TenantInstanceRepository

type instanceRepo struct{ s *memStore }

func (r instanceRepo) ListByCustomers(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]repository.TenantInstance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[uuid.UUID][]repository.TenantInstance{}
	for _, id := range ids {
		for _, ti := range r.s.instances[id] {
			if ti.Status != repository.InstanceDeprovisioned {
				out[id] = append(out[id], ti)
			}
		}
	}
	return out, nil
}

// PasswordResetRepository

type resetRepo struct{ s *memStore }

func (r resetRepo) Create(_ context.Context, t repository.PasswordResetToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.resets[t.TokenHash] = &t
	return nil
}

func (r resetRepo) ConsumeAndSetPassword(_ context.Context, tokenHash, newHash string, now time.Time) (uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.resets[tokenHash]
	if !ok {
		return uuid.Nil, repository.ErrNotFound
	}
	if t.UsedAt != nil || !now.Before(t.ExpiresAt) {
		return uuid.Nil, repository.ErrTokenExpired
	}
	t.UsedAt = &now
	for _, u := range r.s.users {
		if u.ID == t.UserID {
			u.PasswordHash = newHash
		}
	}
	return t.UserID, nil
}

type sentReset struct {
	to, link  string
	expiresAt time.Time
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentReset
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, to, _ string, link string, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentReset{to: to, link: link, expiresAt: expiresAt})
	return nil
}

func newTokens() *jwt.Service {
	s, err := jwt.NewService(jwt.Config{
		Secret:   []byte("0123456789abcdef0123456789abcdef"),
		Issuer:   "https://auth.test",
		Audience: "farutech",
	})
	if err != nil {
		panic(err)
	}
	return s
}

func newTestServices(st *memStore, n ResetNotifier) (Services, *jwt.Service) {
	tk := newTokens()
	return NewServices(Deps{
		Users:       userRepo{st},
		Memberships: membershipRepo{st},
		Customers:   customerRepo{st},
		Instances:   instanceRepo{st},
		Resets:      resetRepo{st},
		Tokens:      tk,
		Notifier:    n,
		ResetURL:    "https://app.test/reset-password",
	}), tk
}

func accessParams(userID, tenantID uuid.UUID) jwt.AccessParams {
	return jwt.AccessParams{UserID: userID, TenantID: tenantID, Role: repository.RoleOwner}
}

package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memUser struct {
	user   User
	alerts map[string]bool
}

type triggerKey struct {
	userID int64
	key    string
}

// Memory is an in-process Store.
type Memory struct {
	mu        sync.RWMutex
	closed    bool
	users     map[int64]*memUser
	nodes     map[int64][]Node
	nextNode  int64
	triggered map[triggerKey]time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:     map[int64]*memUser{},
		nodes:     map[int64][]Node{},
		triggered: map[triggerKey]time.Time{},
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) AddUserWithAlerts(_ context.Context, userID int64, username string, kinds []string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return User{}, ErrClosed
	}
	u, ok := m.users[userID]
	if !ok {
		u = &memUser{
			user:   User{ID: userID, Username: username, JoinedAt: time.Unix(time.Now().Unix(), 0)},
			alerts: map[string]bool{},
		}
		m.users[userID] = u
	}
	for _, kind := range kinds {
		if _, seen := u.alerts[kind]; !seen {
			u.alerts[kind] = true
		}
	}
	return u.user, nil
}

func (m *Memory) GetUser(_ context.Context, userID int64) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return User{}, ErrClosed
	}
	u, ok := m.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u.user, nil
}

func (m *Memory) UsersWithEnabledAlert(_ context.Context, kind string, onlyWithNodes bool) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []User
	for id, u := range m.users {
		if !u.alerts[kind] {
			continue
		}
		if onlyWithNodes && len(m.nodes[id]) == 0 {
			continue
		}
		out = append(out, u.user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UserAlerts(_ context.Context, userID int64) ([]UserAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	out := make([]UserAlert, 0, len(u.alerts))
	for kind, enabled := range u.alerts {
		out = append(out, UserAlert{Kind: kind, Enabled: enabled})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (m *Memory) SetUserAlertEnabled(_ context.Context, userID int64, kind string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.alerts[kind] = enabled
	return nil
}

func (m *Memory) UserNodes(_ context.Context, userID int64) ([]Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	nodes := m.nodes[userID]
	if len(nodes) == 0 {
		return nil, nil
	}
	return append([]Node(nil), nodes...), nil
}

func (m *Memory) AddNode(_ context.Context, userID int64, adnl, label string) (Node, error) {
	adnl = normalizeADNL(adnl)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Node{}, ErrClosed
	}
	nodes := m.nodes[userID]
	for _, n := range nodes {
		if n.ADNL == adnl {
			return Node{}, ErrNodeExists
		}
	}
	if len(nodes) >= MaxNodesPerUser {
		return Node{}, ErrTooManyNodes
	}
	m.nextNode++
	n := Node{ID: m.nextNode, UserID: userID, ADNL: adnl, Label: label}
	m.nodes[userID] = append(nodes, n)
	return n, nil
}

func (m *Memory) SetNodeLabel(_ context.Context, userID int64, adnl, label string) error {
	adnl = normalizeADNL(adnl)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for i, n := range m.nodes[userID] {
		if n.ADNL == adnl {
			m.nodes[userID][i].Label = label
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) RemoveNode(_ context.Context, userID int64, adnl string) error {
	adnl = normalizeADNL(adnl)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	nodes := m.nodes[userID]
	for i, n := range nodes {
		if n.ADNL == adnl {
			m.nodes[userID] = append(nodes[:i:i], nodes[i+1:]...)
			if len(m.nodes[userID]) == 0 {
				delete(m.nodes, userID)
			}
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) TriggeredAlertExists(_ context.Context, userID int64, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.triggered[triggerKey{userID, key}]
	return ok, nil
}

func (m *Memory) SetTriggeredAlert(_ context.Context, userID int64, key string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	k := triggerKey{userID, key}
	if _, ok := m.triggered[k]; !ok {
		m.triggered[k] = time.Unix(at.Unix(), 0)
	}
	return nil
}

func (m *Memory) ClearTriggeredAlert(_ context.Context, userID int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.triggered, triggerKey{userID, key})
	return nil
}

func (m *Memory) TriggeredAlerts(_ context.Context, prefix string) ([]TriggeredAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []TriggeredAlert
	for k, at := range m.triggered {
		if strings.HasPrefix(k.key, prefix) {
			out = append(out, TriggeredAlert{UserID: k.userID, Key: k.key, At: at})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

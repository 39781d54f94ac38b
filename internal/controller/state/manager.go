package state

import (
	"sync"
)

// Manager keeps the dialog state of every chat in memory
type Manager struct {
	mu     sync.RWMutex
	states map[int64]*UserData // chatID -> UserData
}

func NewManager() *Manager {
	return &Manager{
		states: make(map[int64]*UserData),
	}
}

func (sm *Manager) GetState(chatID int64) UserState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if userData, exists := sm.states[chatID]; exists {
		return userData.State
	}
	return StateNone
}

// SetState switches the dialog step. StateNone drops the entry.
func (sm *Manager) SetState(chatID int64, state UserState) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if state == StateNone {
		delete(sm.states, chatID)
		return
	}

	if _, exists := sm.states[chatID]; !exists {
		sm.states[chatID] = &UserData{
			State: state,
			Data:  make(map[string]any),
		}
	} else {
		sm.states[chatID].State = state
	}
}

func (sm *Manager) GetData(chatID int64, key string) (any, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if userData, exists := sm.states[chatID]; exists {
		value, ok := userData.Data[key]
		return value, ok
	}
	return nil, false
}

func (sm *Manager) SetData(chatID int64, key string, value any) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.states[chatID]; !exists {
		sm.states[chatID] = &UserData{
			State: StateNone,
			Data:  make(map[string]any),
		}
	}
	sm.states[chatID].Data[key] = value
}

// GetInt64 reads an integer value stored with SetData.
func (sm *Manager) GetInt64(chatID int64, key string) (int64, bool) {
	value, ok := sm.GetData(chatID, key)
	if !ok {
		return 0, false
	}
	n, ok := value.(int64)
	return n, ok
}

func (sm *Manager) ClearState(chatID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	delete(sm.states, chatID)
}

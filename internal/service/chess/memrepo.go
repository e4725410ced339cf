package chess

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/Cheese-ChessSession/internal/domain"
)

// memrepo keeps game records in process memory when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	nextID    int64
	byID      map[int64]*domain.GameRecord
	bySession map[string]*domain.GameRecord
}

func NewMemoryRepository() Repository {
	return &memrepo{
		byID:      make(map[int64]*domain.GameRecord),
		bySession: make(map[string]*domain.GameRecord),
	}
}

func (m *memrepo) InsertGame(ctx context.Context, game *domain.GameRecord) (int64, error) {
	if game == nil {
		return 0, ErrDuplicateGame
	}
	key := strings.TrimSpace(game.SessionUUID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bySession[key]; exists {
		return 0, ErrDuplicateGame
	}

	m.nextID++
	stored := cloneRecord(game)
	stored.ID = m.nextID
	m.byID[stored.ID] = stored
	m.bySession[key] = stored
	return stored.ID, nil
}

func (m *memrepo) GetRecentGames(ctx context.Context, limit int) ([]*domain.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]*domain.GameRecord, 0, len(m.byID))
	for _, g := range m.byID {
		items = append(items, cloneRecord(g))
	}
	// 최신순, 같은 시각이면 ID 역순
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memrepo) GetGameBySession(ctx context.Context, sessionUUID string) (*domain.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.bySession[strings.TrimSpace(sessionUUID)]; ok && g != nil {
		return cloneRecord(g), nil
	}
	return nil, nil
}

func cloneRecord(g *domain.GameRecord) *domain.GameRecord {
	c := *g
	c.MovesUCI = append([]string(nil), g.MovesUCI...)
	c.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &c
}

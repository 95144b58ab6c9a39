package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/herverfred/mission-center/internal/domain"
)

// Store is the in-memory event store used by tests. It mirrors the postgres
// repository's unique-key semantics: every insert is insert-if-absent and
// reports whether a row was created.
type Store struct {
	mu sync.Mutex

	users map[int64]*domain.User
	games map[int64]*domain.Game

	missions      map[int64]*domain.Mission
	nextMissionID int64

	logins       map[int64]map[time.Time]struct{}      // user -> day set
	launches     map[int64]map[launchKey]struct{}      // user -> (game, day) set
	plays        map[string]domain.PlaySession         // event id -> session
	rewards      map[int64]map[rewardKey]domain.Reward // user -> (type, period) -> reward
	nextRewardID int64

	// Err, when set, is returned by every store call. Tests use it to drive
	// the failure paths.
	Err error
}

type launchKey struct {
	gameID int64
	date   time.Time
}

type rewardKey struct {
	rewardType string
	period     string
}

func NewStore() *Store {
	return &Store{
		users:    make(map[int64]*domain.User),
		games:    make(map[int64]*domain.Game),
		missions: make(map[int64]*domain.Mission),
		logins:   make(map[int64]map[time.Time]struct{}),
		launches: make(map[int64]map[launchKey]struct{}),
		plays:    make(map[string]domain.PlaySession),
		rewards:  make(map[int64]map[rewardKey]domain.Reward),
	}
}

// AddUser and AddGame seed fixtures.
func (s *Store) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.ID] = &cp
}

func (s *Store) AddGame(g domain.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := g
	s.games[g.ID] = &cp
}

// UserPoints reads the current balance, for assertions.
func (s *Store) UserPoints(id int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u.Points
	}
	return 0
}

// --- activity.Store ---

func (s *Store) FindUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) FindUserByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) UserExists(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	_, ok := s.users[id]
	return ok, nil
}

func (s *Store) GameExists(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	_, ok := s.games[id]
	return ok, nil
}

func (s *Store) ListGames(_ context.Context) ([]domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	games := make([]domain.Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, *g)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })
	return games, nil
}

// --- mission.Store: missions ---

func (s *Store) MissionsInCycle(_ context.Context, userID int64, since time.Time) ([]domain.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []domain.Mission
	for _, m := range s.missions {
		if m.UserID == userID && !m.CycleStartDate.Before(domain.Normalize(since)) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CycleStartDate.Equal(out[j].CycleStartDate) {
			return out[i].CycleStartDate.After(out[j].CycleStartDate)
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

func (s *Store) CountMissionsInCycle(ctx context.Context, userID int64, since time.Time) (int64, error) {
	missions, err := s.MissionsInCycle(ctx, userID, since)
	if err != nil {
		return 0, err
	}
	return int64(len(missions)), nil
}

func (s *Store) CountCompletedInCycle(ctx context.Context, userID int64, since time.Time) (int64, error) {
	missions, err := s.MissionsInCycle(ctx, userID, since)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, m := range missions {
		if m.IsCompleted {
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertMission(_ context.Context, userID int64, mt domain.MissionType, cycleStart time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	cycleStart = domain.Normalize(cycleStart)
	for _, m := range s.missions {
		if m.UserID == userID && m.Type == mt && m.CycleStartDate.Equal(cycleStart) {
			return false, nil
		}
	}
	s.nextMissionID++
	s.missions[s.nextMissionID] = &domain.Mission{
		ID:             s.nextMissionID,
		UserID:         userID,
		Type:           mt,
		CycleStartDate: cycleStart,
		CreatedAt:      time.Now(),
	}
	return true, nil
}

func (s *Store) CompleteMission(_ context.Context, missionID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	m, ok := s.missions[missionID]
	if !ok || m.IsCompleted {
		return false, nil
	}
	m.IsCompleted = true
	m.CompletedAt = &at
	return true, nil
}

// --- mission.Store: activity records ---

func (s *Store) InsertLoginDay(_ context.Context, userID int64, date time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	date = domain.Normalize(date)
	days, ok := s.logins[userID]
	if !ok {
		days = make(map[time.Time]struct{})
		s.logins[userID] = days
	}
	if _, dup := days[date]; dup {
		return false, nil
	}
	days[date] = struct{}{}
	return true, nil
}

func (s *Store) LoginDaysInWindow(_ context.Context, userID int64, since time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []time.Time
	for d := range s.logins[userID] {
		if !d.Before(domain.Normalize(since)) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	return out, nil
}

func (s *Store) InsertGameLaunch(_ context.Context, userID, gameID int64, date time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	key := launchKey{gameID: gameID, date: domain.Normalize(date)}
	set, ok := s.launches[userID]
	if !ok {
		set = make(map[launchKey]struct{})
		s.launches[userID] = set
	}
	if _, dup := set[key]; dup {
		return false, nil
	}
	set[key] = struct{}{}
	return true, nil
}

func (s *Store) CountDistinctLaunches(_ context.Context, userID int64, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	games := make(map[int64]struct{})
	for key := range s.launches[userID] {
		if !key.date.Before(domain.Normalize(since)) {
			games[key.gameID] = struct{}{}
		}
	}
	return int64(len(games)), nil
}

func (s *Store) InsertPlaySession(_ context.Context, sess domain.PlaySession) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	if _, dup := s.plays[sess.EventID]; dup {
		return false, nil
	}
	s.plays[sess.EventID] = sess
	return true, nil
}

func (s *Store) PlayStatsInWindow(_ context.Context, userID int64, since time.Time) (domain.PlayStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return domain.PlayStats{}, s.Err
	}
	var stats domain.PlayStats
	for _, p := range s.plays {
		if p.UserID == userID && !p.PlayedAt.Before(since) {
			stats.Count++
			stats.TotalScore += int64(p.Score)
		}
	}
	return stats, nil
}

// --- mission.Store: rewards ---

func (s *Store) DistributeReward(_ context.Context, userID int64, rewardType, period string, points int, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	byUser, ok := s.rewards[userID]
	if !ok {
		byUser = make(map[rewardKey]domain.Reward)
		s.rewards[userID] = byUser
	}
	key := rewardKey{rewardType: rewardType, period: period}
	if _, dup := byUser[key]; dup {
		return false, nil
	}

	u, ok := s.users[userID]
	if !ok {
		return false, domain.ErrPointsNotApplied
	}

	s.nextRewardID++
	byUser[key] = domain.Reward{
		ID:            s.nextRewardID,
		UserID:        userID,
		RewardType:    rewardType,
		RewardPeriod:  period,
		Points:        points,
		DistributedAt: at,
	}
	u.Points += int64(points)
	return true, nil
}

func (s *Store) RewardsByUser(_ context.Context, userID int64) ([]domain.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []domain.Reward
	for _, r := range s.rewards[userID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistributedAt.After(out[j].DistributedAt) })
	return out, nil
}

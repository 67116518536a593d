package client

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// userState — счетчики одного собеседника
type userState struct {
	lim         *rate.Limiter
	strikes     int
	bannedUntil time.Time
}

// Limiter защищает бота от спама: вошедшим пользователям выдается
// ведро запросов, неизвестным после нескольких попыток — временный бан.
// Состояние живет в памяти процесса, после рестарта все прощены.
type Limiter struct {
	mu    sync.Mutex
	users map[int64]*userState

	perWindow  rate.Limit
	burst      int
	maxStrikes int
	banWindow  time.Duration

	now func() time.Time
}

func NewLimiter(maxRequests int, window time.Duration, maxStrikes int, banWindow time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = 1 // нулевой лимит в конфиге не означает деление на ноль
	}
	return &Limiter{
		users:      make(map[int64]*userState),
		perWindow:  rate.Every(window / time.Duration(maxRequests)),
		burst:      maxRequests,
		maxStrikes: maxStrikes,
		banWindow:  banWindow,
		now:        time.Now,
	}
}

func (l *Limiter) state(userID int64) *userState {
	st, ok := l.users[userID]
	if !ok {
		st = &userState{lim: rate.NewLimiter(l.perWindow, l.burst)}
		l.users[userID] = st
	}
	return st
}

// Allow — можно ли обработать сообщение пользователя прямо сейчас
func (l *Limiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(userID)
	if l.now().Before(st.bannedUntil) {
		return false
	}
	return st.lim.Allow()
}

// Strike отмечает попытку неизвестного пользователя. После maxStrikes
// подряд включается бан на banWindow, возвращается true.
func (l *Limiter) Strike(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(userID)
	st.strikes++
	if st.strikes >= l.maxStrikes {
		st.bannedUntil = l.now().Add(l.banWindow)
		st.strikes = 0
		return true
	}
	return false
}

// Forgive сбрасывает счетчик попыток (пользователь опознан)
func (l *Limiter) Forgive(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if st, ok := l.users[userID]; ok {
		st.strikes = 0
		st.bannedUntil = time.Time{}
	}
}

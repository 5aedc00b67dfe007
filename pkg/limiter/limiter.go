// Package limiter provides rate limiting and budget enforcement for LLM API
// calls with token bucket algorithms.
package limiter

import (
	"fmt"
	"sync"
	"time"
)

// Limiter manages rate limiting and budget enforcement across multiple LLM
// models.
type Limiter struct {
	models     map[string]*ModelLimiter
	resetTimer *time.Timer
	mu         sync.RWMutex
}

// ModelLimiter enforces token and budget limits for a specific LLM model.
//
//nolint:govet // Struct layout optimization not critical for this use case
type ModelLimiter struct {
	maxBudgetPerDayUSD float64
	currentBudgetUSD   float64
	lastRefill         time.Time
	mu                 sync.Mutex
	name               string
	maxTokensPerMinute int
	currentTokens      int
}

var (
	// ErrRateLimit is returned when token rate limits are exceeded.
	ErrRateLimit = fmt.Errorf("rate limit exceeded")
	// ErrBudgetExceeded is returned when daily budget limits are exceeded.
	ErrBudgetExceeded = fmt.Errorf("daily budget exceeded")
)

// NewLimiter creates an empty rate limiter. Models are registered with
// AddModel before use.
func NewLimiter() *Limiter {
	l := &Limiter{
		models: make(map[string]*ModelLimiter),
	}

	// Schedule daily reset at midnight.
	l.scheduleDailyReset()

	return l
}

// AddModel registers limits for a model. Zero for either limit means
// unlimited. Registering the same model twice keeps the first entry, so
// workers sharing a model share its bucket.
func (l *Limiter) AddModel(name string, maxTokensPerMinute int, maxBudgetPerDayUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.models[name]; exists {
		return
	}
	l.models[name] = &ModelLimiter{
		name:               name,
		maxTokensPerMinute: maxTokensPerMinute,
		maxBudgetPerDayUSD: maxBudgetPerDayUSD,
		currentTokens:      maxTokensPerMinute, // Start with full bucket
		lastRefill:         time.Now(),
	}
}

// Reserve attempts to reserve the specified number of tokens for the given
// model. Unregistered models are unlimited.
func (l *Limiter) Reserve(model string, tokens int) error {
	l.mu.RLock()
	modelLimiter, exists := l.models[model]
	l.mu.RUnlock()

	if !exists {
		return nil
	}
	return modelLimiter.Reserve(tokens)
}

// RecordSpend adds realized cost to the model's daily budget. Exceeding the
// cap is reported so the next Reserve fails fast.
func (l *Limiter) RecordSpend(model string, costUSD float64) error {
	l.mu.RLock()
	modelLimiter, exists := l.models[model]
	l.mu.RUnlock()

	if !exists {
		return nil
	}
	return modelLimiter.RecordSpend(costUSD)
}

// GetStatus returns the current token and budget usage for a model.
func (l *Limiter) GetStatus(model string) (tokens int, budgetUSD float64, err error) {
	l.mu.RLock()
	modelLimiter, exists := l.models[model]
	l.mu.RUnlock()

	if !exists {
		return 0, 0, fmt.Errorf("model %s not configured", model)
	}
	return modelLimiter.GetStatus()
}

// ResetDaily resets daily limits for all models.
func (l *Limiter) ResetDaily() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, modelLimiter := range l.models {
		modelLimiter.ResetDaily()
	}
}

// Close stops the limiter and releases resources.
func (l *Limiter) Close() {
	if l.resetTimer != nil {
		l.resetTimer.Stop()
	}
}

// Reserve reserves tokens from the rate limit bucket and checks the budget
// cap.
func (ml *ModelLimiter) Reserve(tokens int) error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.maxBudgetPerDayUSD > 0 && ml.currentBudgetUSD >= ml.maxBudgetPerDayUSD {
		return fmt.Errorf("%w for model %s ($%.2f of $%.2f)",
			ErrBudgetExceeded, ml.name, ml.currentBudgetUSD, ml.maxBudgetPerDayUSD)
	}

	if ml.maxTokensPerMinute <= 0 {
		return nil
	}

	// Refill tokens based on time elapsed.
	ml.refillTokens()

	if ml.currentTokens < tokens {
		return fmt.Errorf("%w for model %s (%d tokens requested, %d available)",
			ErrRateLimit, ml.name, tokens, ml.currentTokens)
	}

	ml.currentTokens -= tokens
	return nil
}

// RecordSpend adds realized cost to the daily budget.
func (ml *ModelLimiter) RecordSpend(costUSD float64) error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.currentBudgetUSD += costUSD
	if ml.maxBudgetPerDayUSD > 0 && ml.currentBudgetUSD > ml.maxBudgetPerDayUSD {
		return fmt.Errorf("%w for model %s ($%.2f of $%.2f)",
			ErrBudgetExceeded, ml.name, ml.currentBudgetUSD, ml.maxBudgetPerDayUSD)
	}
	return nil
}

// GetStatus returns the current state of the model limiter.
func (ml *ModelLimiter) GetStatus() (tokens int, budgetUSD float64, err error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.refillTokens()
	return ml.currentTokens, ml.currentBudgetUSD, nil
}

// ResetDaily resets the daily budget and refills the token bucket.
func (ml *ModelLimiter) ResetDaily() {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.currentBudgetUSD = 0
	ml.currentTokens = ml.maxTokensPerMinute // Reset to full bucket
	ml.lastRefill = time.Now()
}

func (ml *ModelLimiter) refillTokens() {
	now := time.Now()
	elapsed := now.Sub(ml.lastRefill)

	if elapsed >= time.Minute {
		// Refill tokens for each minute that has passed.
		minutes := int(elapsed / time.Minute)
		refillAmount := minutes * ml.maxTokensPerMinute

		// Cap at maximum.
		ml.currentTokens += refillAmount
		if ml.currentTokens > ml.maxTokensPerMinute {
			ml.currentTokens = ml.maxTokensPerMinute
		}

		// Update refill time to the last complete minute.
		ml.lastRefill = ml.lastRefill.Add(time.Duration(minutes) * time.Minute)
	}
}

func (l *Limiter) scheduleDailyReset() {
	now := time.Now()

	// Calculate next midnight in local time.
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	timeUntilMidnight := time.Until(nextMidnight)

	l.resetTimer = time.AfterFunc(timeUntilMidnight, func() {
		l.ResetDaily()

		// Schedule the next reset (24 hours from now)
		l.resetTimer = time.AfterFunc(24*time.Hour, func() {
			l.scheduleDailyReset() // Reschedule for next day
		})
	})
}

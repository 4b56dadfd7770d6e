package journey

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Trace records one planning session end to end
type Trace struct {
	Timestamp time.Time `json:"timestamp"`
	Intent    string    `json:"intent"`
	Stages    []Stage   `json:"stages"`
	Verdict   string    `json:"verdict,omitempty"`
}

// Stage represents a distinct pipeline phase (e.g., extract, match, scope, plan)
type Stage struct {
	Name       string  `json:"name"`
	Candidates int     `json:"candidates"`  // count of items produced by this stage
	TopScore   float64 `json:"top_score"`   // highest score in this stage
	DurationMs int64   `json:"duration_ms"` // time taken for this stage
	Detail     string  `json:"detail,omitempty"`
}

// Logger handles writing traces to file
type Logger struct {
	mu          sync.Mutex
	current     *Trace
	logFilePath string
}

var instance *Logger
var once sync.Once

// GetLogger returns the singleton logger instance
func GetLogger() *Logger {
	once.Do(func() {
		home, _ := os.UserHomeDir()
		logPath := filepath.Join(home, ".planpilot", "plan_journey.json")
		instance = &Logger{
			logFilePath: logPath,
		}
	})
	return instance
}

// SetPath overrides the trace file location. Takes effect on the next
// flush.
func (l *Logger) SetPath(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if path != "" {
		l.logFilePath = path
	}
}

// StartNewTrace begins a new planning session
func (l *Logger) StartNewTrace(intent string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.current = &Trace{
		Timestamp: time.Now(),
		Intent:    intent,
		Stages:    make([]Stage, 0),
	}
}

// AddStage records a pipeline stage
func (l *Logger) AddStage(name string, candidates int, topScore float64, duration time.Duration, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		return
	}

	l.current.Stages = append(l.current.Stages, Stage{
		Name:       name,
		Candidates: candidates,
		TopScore:   topScore,
		DurationMs: duration.Milliseconds(),
		Detail:     detail,
	})
}

// SetVerdict records the session outcome (plan kind or rejection reason)
func (l *Logger) SetVerdict(verdict string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		return
	}
	l.current.Verdict = verdict
}

// Flush finalizes the trace and appends it to the log file (JSONL
// format: one JSON object per line)
func (l *Logger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		return
	}

	f, err := os.OpenFile(l.logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Printf("Warning: Failed to write journey log: %v\n", err)
		l.current = nil
		return
	}
	defer f.Close()

	data, _ := json.Marshal(l.current)
	f.Write(data)
	f.WriteString("\n")

	l.current = nil // Reset
}

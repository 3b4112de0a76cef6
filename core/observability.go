package core

import "time"

// TaskExecutionRecord captures a finished task.
type TaskExecutionRecord struct {
	TaskID      TaskID
	Name        string
	RuntimeName string
	WorkerID    int
	SpawnedAt   time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Duration    time.Duration
	Switches    int
	Failed      bool
	Panicked    bool
}

// RuntimeStats is a snapshot of a runtime.
type RuntimeStats struct {
	ID       string
	Name     string
	Workers  int
	Running  bool
	Live     int
	Injected int
	Parked   int
	Sleeping int
	Spawned  int64
	Finished int64
	Failed   int64
	Rejected int64
	Steals   int64
	Stacks   StackPoolStats
}

// WorkerStats is a snapshot of one worker.
type WorkerStats struct {
	ID         int
	ThreadID   int
	Queued     int
	Inbox      int
	Parked     bool
	Executed   int64
	Stolen     int64
	Parks      int64
	LastTaskAt time.Time
}

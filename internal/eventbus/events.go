package eventbus

// Event types published by the engine.
const (
	TaskCreated         = "task.created"
	TaskCompleted       = "task.completed"
	TaskCancelled       = "task.cancelled"
	TaskFault           = "task.fault"
	ReconcileDone       = "reconcile.done"
	SaveCorrupt         = "save.corrupt"
	ConsistencyRepaired = "consistency.repaired"
	GatePaused          = "gate.paused"
	GateResumed         = "gate.resumed"
)

// TaskNotice is the payload of task.* events.
type TaskNotice struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	SubjectID string `json:"subject_id,omitempty"`
	At        int64  `json:"at"`
	Err       string `json:"err,omitempty"`
}

// ReconcileNotice is the payload of reconcile.done.
type ReconcileNotice struct {
	OfflineMs int64 `json:"offline_ms"`
	Ticks     int64 `json:"ticks"`
	Completed int   `json:"completed"`
	Capped    bool  `json:"capped"`
}

// CorruptNotice is the payload of save.corrupt.
type CorruptNotice struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// RepairNotice is the payload of consistency.repaired.
type RepairNotice struct {
	EntityIDs []string `json:"entity_ids"`
}

package usecase

// Ingestion stages reported through ProgressFunc.
const (
	StageUpload   = "upload"
	StageDownload = "download"
	StageRead     = "read"
	StageMapping  = "mapping"
	StageStore    = "store"
	StageSnapshot = "snapshot"
	StageDone     = "done"
)

// Progress is one event of a running ingestion.
type Progress struct {
	RunID   string `json:"run_id"`
	Stage   string `json:"stage"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// ProgressFunc receives progress events. It may be called from several
// goroutines and must not block for long.
type ProgressFunc func(Progress)

func (f ProgressFunc) emit(p Progress) {
	if f != nil {
		f(p)
	}
}

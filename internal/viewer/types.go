package viewer

// Status is the payload of /api/status and /api/status/stream.
type Status struct {
	RunID            string `json:"run_id"`
	Tick             uint64 `json:"tick"`
	Epoch            int64  `json:"epoch"`
	Time             string `json:"time"`
	RecordStartEpoch int64  `json:"record_start_epoch"`
	Recording        bool   `json:"recording"`
	Splash           bool   `json:"splash"`
	Slide            string `json:"slide"`
	FramesDisplayed  uint64 `json:"frames_displayed"`
	Clients          int    `json:"clients"`
	Done             bool   `json:"done"`
}

// KeyRequest is the body of POST /api/key and of websocket messages.
type KeyRequest struct {
	Key string `json:"key"`
}

package protocol

import "time"

// BuildRequest asks a worker to load a model.
type BuildRequest struct {
	ModelPath string `json:"model_path"`
	Device    string `json:"device"`
	Language  string `json:"language"`
	Quiet     bool   `json:"quiet"`
}

// BuildReply identifies the worker-side model handle.
type BuildReply struct {
	ModelID string   `json:"model_id,omitempty"`
	Voices  []string `json:"voices,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type VoicesRequest struct {
	ModelID string `json:"model_id"`
}

type VoicesReply struct {
	Voices []string `json:"voices"`
	Error  string   `json:"error,omitempty"`
}

type SynthesizeRequest struct {
	ModelID string  `json:"model_id"`
	Text    string  `json:"text"`
	Voice   string  `json:"voice"`
	Speed   float64 `json:"speed"`
}

// SegmentChunk carries part of one synthesized segment. A segment larger than
// a single bus message is split across consecutive chunks sharing Segment;
// graphemes and phonemes ride on the first chunk only. The final chunk may be
// empty.
type SegmentChunk struct {
	ModelID   string    `json:"model_id"`
	Segment   int       `json:"segment"`
	Sequence  int       `json:"sequence"`
	Graphemes string    `json:"graphemes,omitempty"`
	Phonemes  string    `json:"phonemes,omitempty"`
	PCM       []byte    `json:"pcm,omitempty"` // float32 little-endian
	Final     bool      `json:"final"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type CloseRequest struct {
	ModelID string `json:"model_id"`
}

type CloseReply struct {
	Error string `json:"error,omitempty"`
}

const (
	SubjectModelBuild      = "tts.model.build"
	SubjectModelVoices     = "tts.model.voices"
	SubjectModelSynthesize = "tts.model.synthesize"
	SubjectModelClose      = "tts.model.close"

	// MaxChunkPCM keeps an encoded SegmentChunk under the default 1MB payload.
	MaxChunkPCM = 512 * 1024
)

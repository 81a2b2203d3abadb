// Package metrics provides per-process counters for the worker and the host.
//
// The Collector accumulates counters for one worker session or one host
// command. It is a leaf package with no internal dependencies; request tags
// are recorded by name so callers need not share a tag type with it.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Requests
	RequestsTotal int64
	RequestsByTag map[string]int64

	// Failures
	FramingFaults       int64
	DecodeErrors        int64
	ContractViolations  int64
	PitchFailures       int64
	ModelFailures       int64
	UnsupportedVersions int64

	// Replies
	CodesSent      int64
	AudioItemsSent int64
	AudioBytesSent int64

	// Archives
	ComponentLoads       int64
	ComponentLoadFailure int64

	// Host process
	WorkerLaunchSuccess int64
	WorkerLaunchFailure int64
	WorkerCrash         int64

	// Capture / notification
	CaptureWriteSuccess int64
	CaptureWriteFailure int64
	NotifyFailures      int64

	// Dimensions (informational, set at construction)
	Role           string
	Checkpoint     string
	StorageBackend string
}

// Collector accumulates counters.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	requestsTotal int64
	requestsByTag map[string]int64

	framingFaults       int64
	decodeErrors        int64
	contractViolations  int64
	pitchFailures       int64
	modelFailures       int64
	unsupportedVersions int64

	codesSent      int64
	audioItemsSent int64
	audioBytesSent int64

	componentLoads       int64
	componentLoadFailure int64

	workerLaunchSuccess int64
	workerLaunchFailure int64
	workerCrash         int64

	captureWriteSuccess int64
	captureWriteFailure int64
	notifyFailures      int64

	role           string
	checkpoint     string
	storageBackend string
}

// NewCollector creates a Collector with dimension labels. role is "worker"
// or "host"; storageBackend may be empty when nothing is captured.
func NewCollector(role, checkpoint, storageBackend string) *Collector {
	return &Collector{
		requestsByTag:  make(map[string]int64),
		role:           role,
		checkpoint:     checkpoint,
		storageBackend: storageBackend,
	}
}

// --- Requests ---

// IncRequest records one handled request of the named kind.
func (c *Collector) IncRequest(tag string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.requestsTotal++
	c.requestsByTag[tag]++
	c.mu.Unlock()
}

// --- Failures ---

// IncFramingFault records a fatal protocol fault (truncation, unknown tag,
// oversize count).
func (c *Collector) IncFramingFault() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framingFaults++
	c.mu.Unlock()
}

// IncDecodeError records a fully consumed payload with invalid content.
func (c *Collector) IncDecodeError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.decodeErrors++
	c.mu.Unlock()
}

// IncContractViolation records a request answered with an error reply.
func (c *Collector) IncContractViolation() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.contractViolations++
	c.mu.Unlock()
}

// IncPitchFailure records a batch or item rejected for an untrained pitch.
func (c *Collector) IncPitchFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pitchFailures++
	c.mu.Unlock()
}

// IncModelFailure records any other model error.
func (c *Collector) IncModelFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.modelFailures++
	c.mu.Unlock()
}

// IncUnsupportedVersion records an operation answered with an empty result
// because the loaded archive has the wrong schema version.
func (c *Collector) IncUnsupportedVersion() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.unsupportedVersions++
	c.mu.Unlock()
}

// --- Replies ---

// AddCodesSent records latent codes written in a reply.
func (c *Collector) AddCodesSent(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.codesSent += int64(n)
	c.mu.Unlock()
}

// AddAudioSent records audio items and their payload bytes written in a reply.
func (c *Collector) AddAudioSent(items, bytes int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.audioItemsSent += int64(items)
	c.audioBytesSent += int64(bytes)
	c.mu.Unlock()
}

// --- Archives ---

// IncComponentLoad records a successful archive load.
func (c *Collector) IncComponentLoad() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.componentLoads++
	c.mu.Unlock()
}

// IncComponentLoadFailure records a failed archive load.
func (c *Collector) IncComponentLoadFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.componentLoadFailure++
	c.mu.Unlock()
}

// --- Host process ---

// IncWorkerLaunchSuccess records a worker that completed its handshake.
func (c *Collector) IncWorkerLaunchSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.workerLaunchSuccess++
	c.mu.Unlock()
}

// IncWorkerLaunchFailure records a worker that failed to start or handshake.
func (c *Collector) IncWorkerLaunchFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.workerLaunchFailure++
	c.mu.Unlock()
}

// IncWorkerCrash records a worker that exited non-zero.
func (c *Collector) IncWorkerCrash() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.workerCrash++
	c.mu.Unlock()
}

// --- Capture / notification ---

// IncCaptureWriteSuccess records a successful capture write (per call).
func (c *Collector) IncCaptureWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.captureWriteSuccess++
	c.mu.Unlock()
}

// IncCaptureWriteFailure records a failed capture write (per call).
func (c *Collector) IncCaptureWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.captureWriteFailure++
	c.mu.Unlock()
}

// IncNotifyFailure records a failed adapter publish.
func (c *Collector) IncNotifyFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.notifyFailures++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byTag := make(map[string]int64, len(c.requestsByTag))
	for k, v := range c.requestsByTag {
		byTag[k] = v
	}

	return Snapshot{
		RequestsTotal: c.requestsTotal,
		RequestsByTag: byTag,

		FramingFaults:       c.framingFaults,
		DecodeErrors:        c.decodeErrors,
		ContractViolations:  c.contractViolations,
		PitchFailures:       c.pitchFailures,
		ModelFailures:       c.modelFailures,
		UnsupportedVersions: c.unsupportedVersions,

		CodesSent:      c.codesSent,
		AudioItemsSent: c.audioItemsSent,
		AudioBytesSent: c.audioBytesSent,

		ComponentLoads:       c.componentLoads,
		ComponentLoadFailure: c.componentLoadFailure,

		WorkerLaunchSuccess: c.workerLaunchSuccess,
		WorkerLaunchFailure: c.workerLaunchFailure,
		WorkerCrash:         c.workerCrash,

		CaptureWriteSuccess: c.captureWriteSuccess,
		CaptureWriteFailure: c.captureWriteFailure,
		NotifyFailures:      c.notifyFailures,

		Role:           c.role,
		Checkpoint:     c.checkpoint,
		StorageBackend: c.storageBackend,
	}
}

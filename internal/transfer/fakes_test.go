package transfer

import (
	"context"
	"sync"
	"time"
)

// scriptedTransport fails a URL for the configured number of leading attempts
// and records chunk boundaries through the in-flight counter.
type scriptedTransport struct {
	mutex           sync.Mutex
	failuresByURL   map[string]int
	alwaysFailing   map[string]bool
	upToDateURLs    map[string]bool
	attemptsByURL   map[string]int
	inFlight        int
	maximumInFlight int
	started         int
	completed       int
	batchSize       int
	boundaryBreaks  int
	taskDelay       time.Duration
}

func newScriptedTransport(batchSize int) *scriptedTransport {
	return &scriptedTransport{
		failuresByURL: make(map[string]int),
		alwaysFailing: make(map[string]bool),
		upToDateURLs:  make(map[string]bool),
		attemptsByURL: make(map[string]int),
		batchSize:     batchSize,
		taskDelay:     2 * time.Millisecond,
	}
}

func (transport *scriptedTransport) begin(remoteURL string) int {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()
	if transport.batchSize > 0 {
		chunkIndex := transport.started / transport.batchSize
		if transport.completed < chunkIndex*transport.batchSize {
			transport.boundaryBreaks++
		}
	}
	transport.started++
	transport.inFlight++
	if transport.inFlight > transport.maximumInFlight {
		transport.maximumInFlight = transport.inFlight
	}
	transport.attemptsByURL[remoteURL]++
	return transport.attemptsByURL[remoteURL]
}

func (transport *scriptedTransport) end() {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()
	transport.inFlight--
	transport.completed++
}

func (transport *scriptedTransport) fails(remoteURL string, attempt int) bool {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()
	return transport.alwaysFailing[remoteURL] || attempt <= transport.failuresByURL[remoteURL]
}

func (transport *scriptedTransport) attempts(remoteURL string) int {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()
	return transport.attemptsByURL[remoteURL]
}

func (transport *scriptedTransport) Clone(_ context.Context, task Task) *TransferError {
	attempt := transport.begin(task.RemoteURL)
	defer transport.end()
	time.Sleep(transport.taskDelay)
	if transport.fails(task.RemoteURL, attempt) {
		return NewTransferError(KindClone, task.RemoteURL, 128, "fatal: repository not found", nil)
	}
	return nil
}

func (transport *scriptedTransport) Push(_ context.Context, task Task) (bool, *TransferError) {
	attempt := transport.begin(task.RemoteURL)
	defer transport.end()
	time.Sleep(transport.taskDelay)
	if transport.fails(task.RemoteURL, attempt) {
		return false, NewTransferError(KindPush, task.RemoteURL, 1, "error: failed to push some refs", nil)
	}
	transport.mutex.Lock()
	defer transport.mutex.Unlock()
	return transport.upToDateURLs[task.RemoteURL], nil
}

package listener

import (
	"sync"
	"testing"
	"time"

	"github.com/redink-ai/redink/internal/pkg/event"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func (d *recordingDispatcher) DispatchThumbnail(taskDir, filename string) bool {
	d.mu.Lock()
	d.calls = append(d.calls, taskDir+"/"+filename)
	d.mu.Unlock()
	d.done <- struct{}{}
	return true
}

func TestThumbnailListenerDispatchesFirstImage(t *testing.T) {
	bus := event.NewEventBus()
	defer bus.Shutdown()
	d := &recordingDispatcher{done: make(chan struct{}, 4)}
	NewThumbnailListener(bus, d)

	bus.Publish(event.TaskSynced, event.TaskSyncedPayload{TaskID: "task_empty", TaskDir: "/h/task_empty"})
	bus.Publish(event.TaskSynced, event.TaskSyncedPayload{TaskID: "task_1", TaskDir: "/h/task_1", Images: []string{"0.png", "1.png"}})

	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		t.Fatal("未收到缩略图派发")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) != 1 || d.calls[0] != "/h/task_1/0.png" {
		t.Errorf("calls = %v", d.calls)
	}
}

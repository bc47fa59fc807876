/*
 * @Description: 一个带固定Worker池的异步事件总线
 * @Author: 安知鱼
 * @Date: 2025-07-10 19:06:12
 * @LastEditTime: 2026-09-07 10:42:18
 * @LastEditors: 安知鱼
 */
package event

import (
	"log"
	"sync"
)

// Topic 事件类型
type Topic string

const (
	// 历史记录事件
	RecordCreated Topic = "record:created"
	RecordDeleted Topic = "record:deleted"
	// 任务目录对账完成
	TaskSynced Topic = "task:synced"
	// 服务商配置变更
	ProviderConfigChanged Topic = "provider:changed"
)

// RecordPayload 记录事件的载荷
type RecordPayload struct {
	RecordID string
	TaskID   string
}

// TaskSyncedPayload 对账完成事件的载荷
type TaskSyncedPayload struct {
	RecordID string
	TaskID   string
	TaskDir  string
	Images   []string
}

// Handler 事件处理器函数类型
type Handler func(payload interface{})

// Event 是在通道中传递的事件结构
type Event struct {
	Topic   Topic
	Payload interface{}
}

// EventBus 实现了基于Worker池的异步事件总线
type EventBus struct {
	mu        sync.RWMutex
	handlers  map[Topic][]Handler
	eventChan chan Event
	wg        sync.WaitGroup
	closeOnce sync.Once
}

const (
	DefaultWorkerCount = 4
	DefaultChannelSize = 1024
)

// NewEventBus 创建并启动一个新的事件总线
func NewEventBus() *EventBus {
	return NewEventBusWithWorkers(DefaultWorkerCount, DefaultChannelSize)
}

// NewEventBusWithWorkers 指定 worker 数量和通道容量
func NewEventBusWithWorkers(workers, size int) *EventBus {
	bus := &EventBus{
		handlers:  make(map[Topic][]Handler),
		eventChan: make(chan Event, size),
	}
	for i := 0; i < workers; i++ {
		bus.wg.Add(1)
		go bus.worker(i + 1)
	}
	return bus
}

func (b *EventBus) worker(workerID int) {
	defer b.wg.Done()
	for event := range b.eventChan {
		b.mu.RLock()
		handlers := b.handlers[event.Topic]
		b.mu.RUnlock()
		for _, handler := range handlers {
			b.dispatch(workerID, event, handler)
		}
	}
}

// dispatch 单个处理器 panic 不影响 worker 继续消费
func (b *EventBus) dispatch(workerID int, event Event, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[EventBus] Worker %d 处理事件 '%s' 时发生 panic: %v", workerID, event.Topic, r)
		}
	}()
	handler(event.Payload)
}

// Subscribe 订阅一个事件
func (b *EventBus) Subscribe(topic Topic, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Publish 非阻塞发布，通道已满时丢弃事件
func (b *EventBus) Publish(topic Topic, payload interface{}) {
	select {
	case b.eventChan <- Event{Topic: topic, Payload: payload}:
	default:
		log.Printf("[EventBus] WARN: 事件通道已满，丢弃事件 '%s'", topic)
	}
}

// Shutdown 关闭通道并等待所有 worker 处理完剩余事件
func (b *EventBus) Shutdown() {
	b.closeOnce.Do(func() {
		close(b.eventChan)
		b.wg.Wait()
		log.Println("[EventBus] 所有 worker 已停止")
	})
}

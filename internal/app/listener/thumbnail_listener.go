/*
 * @Description: 监听 TaskSynced 事件，为首张图片派发缩略图生成任务
 * @Author: 安知鱼
 * @Date: 2025-07-18 17:30:00
 * @LastEditTime: 2026-09-11 11:05:31
 * @LastEditors: 安知鱼
 */
package listener

import (
	"log"

	"github.com/redink-ai/redink/internal/pkg/event"
)

// ThumbnailDispatcher 由 task.Scheduler 实现
type ThumbnailDispatcher interface {
	DispatchThumbnail(taskDir, filename string) bool
}

// ThumbnailListener 在任务目录对账完成后生成封面缩略图
type ThumbnailListener struct {
	dispatcher ThumbnailDispatcher
}

// NewThumbnailListener 是 ThumbnailListener 的构造函数，并订阅 TaskSynced 事件。
func NewThumbnailListener(bus *event.EventBus, dispatcher ThumbnailDispatcher) *ThumbnailListener {
	l := &ThumbnailListener{dispatcher: dispatcher}
	bus.Subscribe(event.TaskSynced, l.handleTaskSynced)
	return l
}

func (l *ThumbnailListener) handleTaskSynced(payload interface{}) {
	p, ok := payload.(event.TaskSyncedPayload)
	if !ok {
		log.Printf("[ThumbnailListener] 错误：收到的 TaskSynced 事件负载类型不正确: %T", payload)
		return
	}
	if len(p.Images) == 0 {
		return
	}
	if !l.dispatcher.DispatchThumbnail(p.TaskDir, p.Images[0]) {
		log.Printf("[ThumbnailListener] 任务 %s 的缩略图任务未能入队", p.TaskID)
	}
}

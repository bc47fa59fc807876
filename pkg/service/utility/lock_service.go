/*
 * @Description: 按任务ID串行化的锁
 * @Author: 安知鱼
 * @Date: 2025-07-14 01:41:43
 * @LastEditTime: 2026-09-02 15:37:50
 * @LastEditors: 安知鱼
 */
package utility

import "sync"

// KeyedLocker 为每个键（例如任务ID）提供独立的互斥锁，
// 保证同一任务目录的对账不会并发执行，不同任务之间互不阻塞。
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// NewKeyedLocker 创建一个新的 KeyedLocker 实例。
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*refMutex)}
}

// Lock 获取 key 对应的锁，返回的函数用于释放。
// 没有持有者的锁会被回收，map 不会无限增长。
func (l *KeyedLocker) Lock(key string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &refMutex{}
		l.locks[key] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

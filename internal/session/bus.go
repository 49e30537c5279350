package session

import (
	"sync"
)

// TopicSessionInvalidated 登录态失效(登出/多端互踢)时广播，追踪侧收到后停掉该用户的全部追踪。
const TopicSessionInvalidated = "session-invalidated"

// Bus 进程内的会话事件总线
//
// 发布是非阻塞的：订阅者缓冲满了就丢，会话失效这类事件
// 只要最终有一条送达即可，不值得为它阻塞发布方。
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan string
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]chan string)}
}

// Subscribe 订阅指定主题，返回事件通道和取消函数。
// 取消函数可重复调用，通道在取消后关闭。
func (b *Bus) Subscribe(topic string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan string, 8)
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan string)
	}
	b.subs[topic][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[topic]; ok {
				if c, ok := set[id]; ok {
					delete(set, id)
					close(c)
				}
			}
		})
	}
	return ch, cancel
}

// Publish 向主题的全部订阅者广播载荷(通常是 userID)。
func (b *Bus) Publish(topic, payload string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- payload:
		default:
		}
	}
}

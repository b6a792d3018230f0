// Package events はプロセス全体の通知バスを提供する。
// ミドルウェアがUIに直接依存せずに通知を配信するための疎結合な経路。
package events

import (
	"sync"

	"github.com/hitoshi/accountman/internal/model"
)

// AccountBroken はアカウント連携切れ通知を表す。
// バックエンドが403でACCOUNT_BROKENコードを返した際に配信される。
type AccountBroken struct {
	Platform model.Platform
	Message  string
}

// Bus はAccountBroken通知の購読・配信を管理する。
// レジストリと同様にプロセススコープのシングルトンとして使用する。
type Bus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(AccountBroken)
}

// NewBus は新しいBusを生成する。
func NewBus() *Bus {
	return &Bus{
		listeners: make(map[int]func(AccountBroken)),
	}
}

// SubscribeAccountBroken はリスナーを登録し、解除用の関数を返す。
// リスナーはPublishの呼び出し元のゴルーチンで同期的に呼ばれる。
func (b *Bus) SubscribeAccountBroken(fn func(AccountBroken)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// PublishAccountBroken は登録済みの全リスナーに通知を配信する。
func (b *Bus) PublishAccountBroken(n AccountBroken) {
	b.mu.RLock()
	fns := make([]func(AccountBroken), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(n)
	}
}

package guard

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

// Число шардов. Степень двойки, чтобы замешивание fnv давало ровное распределение.
const shardCount = 256

// WindowStore хранит историю таймстемпов запросов по каждому клиентскому ключу.
//
// Одно хранилище обслуживает оба окна: rate-лимитер (60с) пишет и читает,
// burst-протектор (10с) только читает с другим отсечением. Одна запись —
// два независимых чтения, без дублирования состояния.
//
// Конкурентность: мапа ключей разбита на шарды, каждый под своим мьютексом.
// Запросы с разных ключей почти никогда не конкурируют; глобального лока
// на hot path нет. Janitor ходит по тем же шардовым мьютексам, поэтому
// конкурентное удаление ключа не может потерять только что записанную метку.
type WindowStore struct {
	shards [shardCount]windowShard
	window time.Duration // горизонт хранения (60с)
	now    func() time.Time
}

type windowShard struct {
	mu   sync.Mutex
	keys map[string][]time.Time
}

func NewWindowStore(window time.Duration) *WindowStore {
	s := &WindowStore{window: window, now: time.Now}
	for i := range s.shards {
		s.shards[i].keys = make(map[string][]time.Time)
	}
	return s
}

func (s *WindowStore) shard(key string) *windowShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.shards[h.Sum32()%shardCount]
}

// Reserve — атомарный шаг rate-лимитера: выкинуть устаревшие метки, проверить
// порог и, только если порог не достигнут, записать текущую метку.
// Возвращает число меток в окне (после записи, если она случилась),
// самую старую метку и флаг "запись произошла".
//
// Запись строго на allow-пути: отклоненный запрос не увеличивает окно.
func (s *WindowStore) Reserve(key string, now time.Time, limit int) (count int, oldest time.Time, ok bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	stamps := trimExpired(sh.keys[key], now.Add(-s.window))

	if len(stamps) >= limit {
		sh.keys[key] = stamps
		return len(stamps), stamps[0], false
	}

	stamps = append(stamps, now)
	sh.keys[key] = stamps
	return len(stamps), stamps[0], true
}

// CountSince возвращает число меток позже cutoff, ничего не мутируя.
// Burst-протектор читает этим методом то же окно с 10-секундным отсечением.
func (s *WindowStore) CountSince(key string, cutoff time.Time) int {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	stamps := sh.keys[key]
	// Метки отсортированы по возрастанию (append только под локом шарда)
	i := sort.Search(len(stamps), func(i int) bool { return stamps[i].After(cutoff) })
	return len(stamps) - i
}

// Sweep — проход Janitor'а: в каждом шарде выкинуть устаревшие метки
// и удалить опустевшие ключи. Ограничивает память при неограниченной
// кардинальности наблюдаемых IP. Возвращает число удаленных ключей.
func (s *WindowStore) Sweep(now time.Time) (removed int) {
	cutoff := now.Add(-s.window)
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, stamps := range sh.keys {
			stamps = trimExpired(stamps, cutoff)
			if len(stamps) == 0 {
				delete(sh.keys, key)
				removed++
				continue
			}
			sh.keys[key] = stamps
		}
		sh.mu.Unlock()
	}
	return removed
}

// Keys возвращает текущее число отслеживаемых ключей (метрика насыщения).
func (s *WindowStore) Keys() int {
	total := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		total += len(sh.keys)
		sh.mu.Unlock()
	}
	return total
}

// Has сообщает, есть ли у ключа хоть какое-то состояние.
func (s *WindowStore) Has(key string) bool {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.keys[key]
	return ok
}

// trimExpired отрезает метки не позже cutoff. Инвариант хранилища:
// все живые метки строго новее now-window.
func trimExpired(stamps []time.Time, cutoff time.Time) []time.Time {
	i := sort.Search(len(stamps), func(i int) bool { return stamps[i].After(cutoff) })
	if i == 0 {
		return stamps
	}
	// Сдвигаем хвост в начало, чтобы не держать ссылку на старый массив
	return append(stamps[:0], stamps[i:]...)
}

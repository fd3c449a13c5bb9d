package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "igw"
)

// Ключи для индексов (состояние)
const (
	// RedisKeyEvidenceRecent — ограниченный список последних evidence_id (LPUSH+LTRIM)
	RedisKeyEvidenceRecent = RedisNamespace + ":evidence:recent"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanEvidenceSignal — канал анонсов "evidence_id:verification_status"
	// для внешних подписчиков (алертинг на рост доли failed-подписей и т.п.)
	RedisChanEvidenceSignal = RedisNamespace + ":evidence:signal"
)

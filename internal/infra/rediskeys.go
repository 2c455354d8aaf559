package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "authgate"
)

// Ключи состояния
const (
	// RedisKeyRevokedTokens — sorted set: member = jti, score = exp (unix).
	RedisKeyRevokedTokens = RedisNamespace + ":tokens:revoked"
	// RedisKeyPrincipalPrefix — кэш принципалов, ключ дополняется username.
	RedisKeyPrincipalPrefix = RedisNamespace + ":principals:"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanRevocation — формат сообщения "jti:true" (отзыв) или "jti:false" (восстановление).
	RedisChanRevocation = RedisNamespace + ":tokens:revocation-signal"
)

// PrincipalCacheKey возвращает ключ кэша для принципала.
func PrincipalCacheKey(username string) string {
	return RedisKeyPrincipalPrefix + username
}
